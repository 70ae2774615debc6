package http

import (
	"html/template"
	"log/slog"
	"net/http"
)

// checkoutPage is the minimal storefront served at the root. It loads the
// billing provider's checkout overlay so a customer can start a
// subscription against the configured plan.
const checkoutPage = `<!DOCTYPE html>
<html>
<head>
    <title>Buy a License</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 40px; }
        button { padding: 12px 24px; font-size: 16px; cursor: pointer; }
    </style>
    <script src="https://cdn.paddle.com/paddle/paddle.js"></script>
    <script type="text/javascript">
        Paddle.Setup({ vendor: {{.VendorID}} });
        function openCheckout() {
            Paddle.Checkout.open({ product: {{.PlanID}} });
        }
    </script>
</head>
<body>
    <h1>Buy a License</h1>
    <p>Your license key will be emailed to you after checkout.</p>
    <button onclick="openCheckout()">Subscribe</button>
</body>
</html>
`

// checkoutData carries the template values for the checkout page
type checkoutData struct {
	VendorID string
	PlanID   string
}

// ServeCheckoutPage serves the checkout page at GET /
func ServeCheckoutPage(vendorID, planID string, logger *slog.Logger) http.HandlerFunc {
	tmpl := template.Must(template.New("checkout").Parse(checkoutPage))
	if logger == nil {
		logger = slog.Default()
	}

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.Execute(w, checkoutData{VendorID: vendorID, PlanID: planID}); err != nil {
			logger.ErrorContext(r.Context(), "failed to render checkout page",
				slog.String("error", err.Error()))
		}
	}
}
