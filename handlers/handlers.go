package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"shop-service/internal/auth"
	"shop-service/internal/cart"
	"shop-service/internal/orders"
	"shop-service/internal/payments"
	"shop-service/internal/products"
	"shop-service/internal/users"
	"shop-service/middleware"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 64 * 1024

type OrderBuilder interface {
	Create(ctx context.Context, p auth.Principal, req orders.NewOrder) (orders.Order, error)
}

type OrderStore interface {
	ListByUser(ctx context.Context, userID int64, status orders.Status, orderedOnly bool) ([]orders.Order, error)
	Get(ctx context.Context, userID, orderID int64) (orders.Order, error)
	ListForSeller(ctx context.Context, sellerID int64) ([]orders.Order, error)
	Stats(ctx context.Context, userID int64, forSeller bool) (orders.Stats, error)
	UpdateStatus(ctx context.Context, sellerID, orderID int64, status orders.Status) (orders.Order, error)
	Delete(ctx context.Context, userID, orderID int64) error
}

type Catalog interface {
	Create(ctx context.Context, sellerID int64, n products.NewProduct) (products.Product, error)
	Get(ctx context.Context, id int64) (products.Product, error)
	List(ctx context.Context, f products.Filter) ([]products.Product, error)
	Update(ctx context.Context, sellerID, id int64, u products.UpdateProduct) (products.Product, error)
	Delete(ctx context.Context, sellerID, id int64) error
	Invalidate(ctx context.Context, ids ...int64)
}

type Categories interface {
	InsertCategory(ctx context.Context, n products.NewCategory) (products.Category, error)
	GetCategory(ctx context.Context, id int64) (products.Category, error)
	ListCategories(ctx context.Context) ([]products.Category, error)
	UpdateCategory(ctx context.Context, id int64, u products.UpdateCategory) (products.Category, error)
	DeleteCategory(ctx context.Context, id int64) error
}

type Carts interface {
	New(ctx context.Context) (cart.Cart, error)
	Get(ctx context.Context, token string) (cart.Cart, error)
	View(ctx context.Context, token string) (cart.View, error)
	AddItem(ctx context.Context, token string, productID int64, qty int) (cart.Cart, error)
	SetQuantity(ctx context.Context, token string, productID int64, qty int) (cart.Cart, error)
	RemoveItem(ctx context.Context, token string, productID int64) (cart.Cart, error)
	Clear(ctx context.Context, token string) error
}

type UserStore interface {
	InsertUser(ctx context.Context, nu users.NewUser) (users.User, error)
	Authenticate(ctx context.Context, email, password string) (users.User, error)
}

type PaymentGateway interface {
	CreateCheckout(ctx context.Context, o orders.Order) (payments.Checkout, error)
}

type WebhookProcessor interface {
	Handle(ctx context.Context, payload []byte, signature string) (payments.Result, error)
}

type Publisher interface {
	ProduceMessage(ctx context.Context, topic string, key, value []byte) error
}

// Deps are the collaborators the HTTP layer needs. Gateway, Webhooks and
// Publisher are optional.
type Deps struct {
	Keys       *auth.Keys
	Builder    OrderBuilder
	Orders     OrderStore
	Catalog    Catalog
	Categories Categories
	Carts      Carts
	Users      UserStore
	Gateway    PaymentGateway
	Webhooks   WebhookProcessor
	Publisher  Publisher
}

type Handler struct {
	Deps
	validate *validator.Validate
}

func NewHandler(d Deps) *Handler {
	return &Handler{Deps: d, validate: validator.New()}
}

func API(endpointPrefix string, d Deps) (*gin.Engine, error) {
	m, err := middleware.NewMid(d.Keys)
	if err != nil {
		return nil, err
	}
	h := NewHandler(d)

	r := gin.New()
	r.Use(middleware.Logger(), gin.Recovery())
	r.GET("/ping", HealthCheck)

	// Public routes still see the caller when a token is sent.
	v1 := r.Group(endpointPrefix, m.OptionalAuthentication())
	{
		v1.GET("/ping", HealthCheck)
		v1.POST("/signup", h.Signup)
		v1.POST("/login", h.Login)
		v1.POST("/webhook", h.Webhook)

		v1.GET("/products", h.ListProducts)
		v1.GET("/products/:id", h.GetProduct)
		v1.GET("/categories", h.ListCategories)
		v1.GET("/categories/:id", h.GetCategory)

		v1.POST("/cart", h.NewCart)
		v1.GET("/cart/:token", h.ViewCart)
		v1.POST("/cart/:token/items", h.AddCartItem)
		v1.PUT("/cart/:token/items/:productID", h.SetCartItem)
		v1.DELETE("/cart/:token/items/:productID", h.RemoveCartItem)
	}

	authed := r.Group(endpointPrefix, m.Authentication())
	{
		authed.POST("/products", m.Authorize(h.CreateProduct, auth.CapManageCatalog))
		authed.PATCH("/products/:id", m.Authorize(h.UpdateProduct, auth.CapManageCatalog))
		authed.DELETE("/products/:id", m.Authorize(h.DeleteProduct, auth.CapManageCatalog))
		authed.POST("/categories", m.Authorize(h.CreateCategory, auth.CapManageCatalog))
		authed.PATCH("/categories/:id", m.Authorize(h.UpdateCategory, auth.CapManageCatalog))
		authed.DELETE("/categories/:id", m.Authorize(h.DeleteCategory, auth.CapManageCatalog))

		authed.POST("/cart/:token/checkout", m.Authorize(h.CheckoutCart, auth.CapPlaceOrder))

		authed.POST("/orders", m.Authorize(h.CreateOrder, auth.CapPlaceOrder))
		authed.GET("/orders", m.Authorize(h.ListOrders, auth.CapViewOwnOrders))
		authed.GET("/orders/stats", m.Authorize(h.OrderStats, auth.CapViewOwnOrders))
		authed.GET("/orders/:id", m.Authorize(h.GetOrder, auth.CapViewOwnOrders))
		authed.DELETE("/orders/:id", m.Authorize(h.DeleteOrder, auth.CapViewOwnOrders))
		authed.PATCH("/orders/:id/status", m.Authorize(h.UpdateOrderStatus, auth.CapUpdateOrderStatus))
		authed.POST("/orders/:id/pay", m.Authorize(h.PayOrder, auth.CapPlaceOrder))
		authed.GET("/my-orders", m.Authorize(h.MyOrders, auth.CapViewOwnOrders))
		authed.GET("/seller-orders", m.Authorize(h.SellerOrders, auth.CapViewSellerOrders))
	}
	return r, nil
}

func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "pong",
	})
}

func principal(c *gin.Context) auth.Principal {
	return auth.PrincipalFromContext(c.Request.Context())
}

func paramID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": name + " must be a positive integer"})
		return 0, false
	}
	return id, true
}

func bodyTooLarge(c *gin.Context) bool {
	if c.Request.ContentLength > maxBodyBytes {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Request body too large."})
		return true
	}
	return false
}

// validationMessage renders the first failing field the way clients expect.
func validationMessage(err error) string {
	var vErrs validator.ValidationErrors
	if !errors.As(err, &vErrs) || len(vErrs) == 0 {
		return http.StatusText(http.StatusBadRequest)
	}
	vErr := vErrs[0]
	switch vErr.Tag() {
	case "required":
		return vErr.Field() + " value missing"
	case "min":
		return vErr.Field() + " value is less than " + vErr.Param()
	case "max":
		return vErr.Field() + " value is more than " + vErr.Param()
	case "email":
		return vErr.Field() + " is not a valid email"
	case "oneof":
		return vErr.Field() + " must be one of: " + vErr.Param()
	default:
		return vErr.Field() + " is invalid"
	}
}
