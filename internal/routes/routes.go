package routes

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/example/storefront/internal/handlers"
	"github.com/example/storefront/internal/middleware"
)

// Handlers groups every HTTP handler the API exposes.
type Handlers struct {
	Auth      *handlers.AuthHandler
	Products  *handlers.ProductHandler
	Cart      *handlers.CartHandler
	Orders    *handlers.OrderHandler
	Shipments *handlers.ShipmentHandler
	Admin     *handlers.AdminHandler
	Health    *handlers.HealthHandler
}

// Register wires up all HTTP routes. metrics may be nil when no exporter is
// configured.
func Register(app *fiber.App, h Handlers, jwtSecret string, metrics http.Handler) {
	app.Get("/healthz", h.Health.Health)
	if metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(metrics))
	}

	api := app.Group("/api")

	// Auth routes
	auth := api.Group("/auth")
	auth.Post("/register", h.Auth.Register)
	auth.Post("/login", h.Auth.Login)

	// Catalog is public; admins see soft-deleted products on ?include_deleted=true.
	products := api.Group("/products", middleware.OptionalAuth(jwtSecret))
	products.Get("/", h.Products.ListProducts)
	products.Get("/:id", h.Products.GetProduct)

	// Protected routes
	protected := api.Group("", middleware.AuthMiddleware(jwtSecret))

	protected.Get("/profile", h.Auth.Profile)

	protected.Get("/cart", h.Cart.GetCart)
	protected.Post("/cart", h.Cart.AddItem)
	protected.Patch("/cart/:id", h.Cart.UpdateItem)
	protected.Delete("/cart/:id", h.Cart.RemoveItem)

	protected.Post("/checkout", h.Orders.Checkout)
	protected.Get("/orders", h.Orders.ListOrders)
	protected.Get("/orders/:id", h.Orders.GetOrder)
	protected.Post("/orders/:id/payment", h.Orders.InitiatePayment)
	protected.Get("/orders/:id/shipments", h.Shipments.ListShipments)
	protected.Post("/payments/verify", h.Orders.VerifyPayment)

	admin := protected.Group("/admin", middleware.RequireAdmin())
	admin.Get("/orders", h.Admin.ListOrders)
	admin.Patch("/orders/:id/status", h.Admin.UpdateOrderStatus)
	admin.Post("/orders/:id/shipments", h.Shipments.Dispatch)
	admin.Post("/products", h.Products.CreateProduct)
	admin.Post("/products/:id/variants", h.Products.CreateVariant)
	admin.Delete("/products/:id", h.Products.DeleteProduct)
	admin.Patch("/variants/:id/stock", h.Products.SetStock)
}
