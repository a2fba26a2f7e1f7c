package session

// Route names the screens the gate can send a user to.
type Route int

const (
	RouteLoading Route = iota
	RouteLogin
	RouteDashboard
	RouteRoom
)

// Decision is what a guard resolved to: render the requested route, or go
// somewhere else.
type Decision struct {
	Route    Route
	Redirect bool
}

// Protected lets authenticated users through to target and sends everyone
// else to login. Nothing is decided while the session is still pending.
func Protected(state State, target Route) Decision {
	switch state {
	case StateAuthenticated:
		return Decision{Route: target}
	case StateAnonymous:
		return Decision{Route: RouteLogin, Redirect: true}
	default:
		return Decision{Route: RouteLoading}
	}
}

// PublicOnly is the inverse guard for the login screen.
func PublicOnly(state State, target Route) Decision {
	switch state {
	case StateAnonymous:
		return Decision{Route: target}
	case StateAuthenticated:
		return Decision{Route: RouteDashboard, Redirect: true}
	default:
		return Decision{Route: RouteLoading}
	}
}

// Resolve applies whichever guard protects target.
func Resolve(state State, target Route) Decision {
	if target == RouteLogin {
		return PublicOnly(state, target)
	}
	return Protected(state, target)
}
