// Package http adapts net/http handlers to the container.
//
// ScopeMiddleware gives every request its own container scope, so
// entries registered with AddScoped are shared inside one request and
// never across requests:
//
//	c.AddScoped("cart", func(r *http.Request) *Cart { ... }, container.WithParams(gohttp.RequestKey))
//
//	func show(w http.ResponseWriter, r *http.Request) {
//	    req, res := gohttp.NewRequest(r, c), gohttp.NewResponse(w)
//	    cart, err := gohttp.Service[*Cart](req, "cart")
//	    if err != nil {
//	        res.Fail(err)
//	        return
//	    }
//	    res.Success(cart)
//	}
//
// Request bodies are validated with go-playground/validator tags and
// failures render as the {"errors": {...}} bag.
package http
