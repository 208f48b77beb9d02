package logkey

// Keys shared by every slog call so log lines can be correlated.
const (
	TraceID   = "TRACE ID"
	ERROR     = "ERROR"
	UserID    = "USER ID"
	OrderID   = "ORDER ID"
	ProductID = "PRODUCT ID"
	CartToken = "CART TOKEN"
)
