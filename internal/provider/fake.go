package provider

import (
	"encoding/json"
	"net/http"
	"net/url"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/cswank/store/pkg/httputil"
)

// Fake is an in-memory stand-in for the commerce platform's REST API. It
// serves the endpoints HTTPProvider calls plus product deletion, and is used
// for local development and tests.
type Fake struct {
	checkoutBase string
	token        string
	router       chi.Router

	mu       sync.Mutex
	products map[ID]Product
	carts    map[ID]*Cart
	deleted  []string
	failWith int
}

// NewFake returns a fake whose checkout URLs start with checkoutBase. When
// token is set every request must carry it.
func NewFake(checkoutBase, token string) *Fake {
	f := &Fake{
		checkoutBase: checkoutBase,
		token:        token,
		products:     make(map[ID]Product),
		carts:        make(map[ID]*Cart),
	}

	r := chi.NewRouter()
	r.Use(f.guard)
	r.Get("/products/{id}.json", f.getProduct)
	r.Post("/carts.json", f.createCart)
	r.Post("/carts/{id}/line_items.json", f.addLineItems)
	r.Delete("/admin/products/{id}.json", f.deleteProduct)
	f.router = r
	return f
}

func (f *Fake) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.router.ServeHTTP(w, r)
}

// AddProduct makes p available to FetchProduct.
func (f *Fake) AddProduct(p Product) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.products[p.ID] = p
}

// FailWith makes every following request answer with status. Zero restores
// normal behaviour.
func (f *Fake) FailWith(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failWith = status
}

// Cart returns a copy of the cart with the given id.
func (f *Fake) Cart(id string) (Cart, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.carts[ID(id)]
	if !ok {
		return Cart{}, false
	}
	out := *c
	out.LineItems = append([]LineItem(nil), c.LineItems...)
	return out, true
}

// Carts returns how many carts were created.
func (f *Fake) Carts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.carts)
}

// Deleted returns the ids of deleted products in order.
func (f *Fake) Deleted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

func (f *Fake) guard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		status := f.failWith
		f.mu.Unlock()

		if status != 0 {
			writeErrors(w, status, http.StatusText(status))
			return
		}
		if f.token != "" && r.Header.Get(AccessTokenHeader) != f.token {
			writeErrors(w, http.StatusUnauthorized, "invalid access token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (f *Fake) getProduct(w http.ResponseWriter, r *http.Request) {
	id := ID(chi.URLParam(r, "id"))

	f.mu.Lock()
	p, ok := f.products[id]
	f.mu.Unlock()

	if !ok {
		writeErrors(w, http.StatusNotFound, "Not Found")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, productEnvelope{Product: &p})
}

func (f *Fake) createCart(w http.ResponseWriter, _ *http.Request) {
	id := ID(uuid.New().String())
	cart := &Cart{
		ID:          id,
		CheckoutURL: f.checkoutBase + "/checkouts/" + string(id) + "?" + url.Values{"channel": {"online_store"}}.Encode(),
		LineItems:   []LineItem{},
	}

	f.mu.Lock()
	f.carts[id] = cart
	out := *cart
	f.mu.Unlock()

	httputil.WriteJSON(w, http.StatusCreated, cartEnvelope{Cart: &out})
}

func (f *Fake) addLineItems(w http.ResponseWriter, r *http.Request) {
	id := ID(chi.URLParam(r, "id"))

	var req lineItemsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrors(w, http.StatusBadRequest, "malformed body")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	cart, ok := f.carts[id]
	if !ok {
		writeErrors(w, http.StatusNotFound, "Not Found")
		return
	}
	for _, li := range req.LineItems {
		if li.Quantity < 1 || !f.hasVariant(li.VariantID) {
			writeErrors(w, http.StatusUnprocessableEntity, "unknown variant "+string(li.VariantID))
			return
		}
	}
	cart.LineItems = append(cart.LineItems, req.LineItems...)

	out := *cart
	out.LineItems = append([]LineItem(nil), cart.LineItems...)
	httputil.WriteJSON(w, http.StatusOK, cartEnvelope{Cart: &out})
}

func (f *Fake) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.products[ID(id)]; !ok {
		writeErrors(w, http.StatusNotFound, "Not Found")
		return
	}
	delete(f.products, ID(id))
	f.deleted = append(f.deleted, id)
	w.WriteHeader(http.StatusOK)
}

// hasVariant must be called with f.mu held.
func (f *Fake) hasVariant(id ID) bool {
	for _, p := range f.products {
		for _, v := range p.Variants {
			if v.ID == id {
				return true
			}
		}
	}
	return false
}

func writeErrors(w http.ResponseWriter, status int, msg string) {
	httputil.WriteJSON(w, status, map[string]string{"errors": msg})
}
