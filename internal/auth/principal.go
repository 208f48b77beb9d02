package auth

import "strconv"

// Kind is the closed set of actors a request can be made by.
type Kind int

const (
	KindAnonymous Kind = iota
	KindBuyer
	KindSeller
)

func (k Kind) String() string {
	switch k {
	case KindBuyer:
		return RoleBuyer
	case KindSeller:
		return RoleSeller
	default:
		return "anonymous"
	}
}

// Capability is something a principal may be allowed to do.
type Capability int

const (
	CapPlaceOrder Capability = iota
	CapViewOwnOrders
	CapManageCatalog
	CapViewSellerOrders
	CapUpdateOrderStatus
)

// Principal is the authenticated actor of a request. The zero value is anonymous.
type Principal struct {
	Kind   Kind
	UserID int64
}

func Anonymous() Principal { return Principal{} }

func Buyer(userID int64) Principal { return Principal{Kind: KindBuyer, UserID: userID} }

func Seller(userID int64) Principal { return Principal{Kind: KindSeller, UserID: userID} }

func (p Principal) IsAnonymous() bool { return p.Kind == KindAnonymous }

// Can reports whether the principal holds the capability.
func (p Principal) Can(c Capability) bool {
	switch p.Kind {
	case KindBuyer:
		return c == CapPlaceOrder || c == CapViewOwnOrders
	case KindSeller:
		return true
	default:
		return false
	}
}

// PrincipalFromClaims maps validated token claims onto a principal.
// Anything that does not name a known role and a numeric subject is anonymous.
func PrincipalFromClaims(c Claims) Principal {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return Anonymous()
	}
	switch c.Role {
	case RoleBuyer:
		return Buyer(id)
	case RoleSeller:
		return Seller(id)
	default:
		return Anonymous()
	}
}
