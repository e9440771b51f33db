package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"pipeerp/internal/response"
)

func withID(fn func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fn(w, r, chi.URLParam(r, "id"))
	}
}

// withStockID parses the numeric stock id.
func withStockID(fn func(http.ResponseWriter, *http.Request, int64)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil || id <= 0 {
			response.Err(w, "invalid stock id", http.StatusBadRequest)
			return
		}
		fn(w, r, id)
	}
}

func (a *App) health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := a.DB.PingContext(r.Context()); err != nil {
		status, code = "database unavailable", http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write([]byte(`{"status":"` + status + `"}`))
}

// Router builds the HTTP handler tree.
func (a *App) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(a.Log))
	r.Use(middleware.Recoverer)
	r.Use(SecurityHeaders)

	r.Get("/health", a.health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(RateLimitMiddleware(a.Limiter, a.Config.Server.APIRateLimit))
		r.Post("/auth/login", a.Admin.Login)

		r.Group(func(r chi.Router) {
			r.Use(RequireAuth(a.Sessions, a.Config.Server.SecureCookies))
			r.Use(RequireRBAC(a.Perms))

			r.Handle("/ws", a.Hub)

			r.Group(func(r chi.Router) {
				r.Use(middleware.Compress(5))
				r.Use(middleware.AllowContentType("application/json"))
				a.mountAPI(r)
			})
		})
	})
	return r
}

func (a *App) mountAPI(r chi.Router) {
	r.Post("/auth/logout", a.Admin.Logout)
	r.Get("/me", a.Admin.Me)

	m := a.Masters
	r.Route("/customers", func(r chi.Router) {
		r.Get("/", m.ListCustomers)
		r.Post("/", m.CreateCustomer)
		r.Get("/{id}", withID(m.GetCustomer))
		r.Put("/{id}", withID(m.UpdateCustomer))
		r.Delete("/{id}", withID(m.DeleteCustomer))
	})
	r.Route("/vendors", func(r chi.Router) {
		r.Get("/", m.ListVendors)
		r.Post("/", m.CreateVendor)
		r.Get("/{id}", withID(m.GetVendor))
		r.Put("/{id}", withID(m.UpdateVendor))
		r.Delete("/{id}", withID(m.DeleteVendor))
	})
	r.Route("/products", func(r chi.Router) {
		r.Get("/", m.ListProducts)
		r.Post("/", m.CreateProduct)
		r.Get("/{id}", withID(m.GetProduct))
		r.Put("/{id}", withID(m.UpdateProduct))
		r.Delete("/{id}", withID(m.DeleteProduct))
	})

	s := a.Sales
	r.Route("/enquiries", func(r chi.Router) {
		r.Get("/", s.ListEnquiries)
		r.Post("/", s.CreateEnquiry)
		r.Get("/{id}", withID(s.GetEnquiry))
		r.Put("/{id}", withID(s.UpdateEnquiry))
		r.Post("/{id}/cancel", withID(s.CancelEnquiry))
		r.Post("/{id}/reopen", withID(s.ReopenEnquiry))
		r.Post("/{id}/lost", withID(s.LoseEnquiry))
		r.Post("/{id}/quote", withID(s.QuoteEnquiry))
	})
	r.Route("/quotations", func(r chi.Router) {
		r.Get("/", s.ListQuotations)
		r.Post("/", s.CreateQuotation)
		r.Get("/{id}", withID(s.GetQuotation))
		r.Put("/{id}", withID(s.UpdateQuotation))
		r.Post("/{id}/send", withID(s.SendQuotation))
		r.Post("/{id}/accept", withID(s.AcceptQuotation))
		r.Post("/{id}/reject", withID(s.RejectQuotation))
		r.Post("/{id}/cancel", withID(s.CancelQuotation))
		r.Post("/{id}/revise", withID(s.ReviseQuotation))
		r.Post("/{id}/convert", withID(s.ConvertQuotation))
	})
	r.Route("/sales-orders", func(r chi.Router) {
		r.Get("/", s.ListSalesOrders)
		r.Post("/", s.CreateSalesOrder)
		r.Get("/{id}", withID(s.GetSalesOrder))
		r.Put("/{id}", withID(s.UpdateSalesOrder))
		r.Get("/{id}/stock", withID(s.OrderStock))
		r.Post("/{id}/confirm", withID(s.ConfirmSalesOrder))
		r.Post("/{id}/cancel", withID(s.CancelSalesOrder))
		r.Post("/{id}/short-close", withID(s.ShortCloseSalesOrder))
		r.Post("/{id}/close", withID(s.CloseSalesOrder))
		r.Post("/{id}/reserve", withID(s.ReserveStock))
		r.Post("/{id}/unreserve", withID(s.UnreserveStock))
	})
	r.Route("/dispatches", func(r chi.Router) {
		r.Get("/", s.ListDispatches)
		r.Post("/", s.CreateDispatch)
		r.Get("/{id}", withID(s.GetDispatch))
		r.Post("/{id}/dispatch", withID(s.ShipDispatch))
		r.Post("/{id}/deliver", withID(s.DeliverDispatch))
		r.Post("/{id}/cancel", withID(s.CancelDispatch))
	})

	p := a.Procurement
	r.Route("/purchase-orders", func(r chi.Router) {
		r.Get("/", p.ListPurchaseOrders)
		r.Post("/", p.CreatePurchaseOrder)
		r.Get("/{id}", withID(p.GetPurchaseOrder))
		r.Put("/{id}", withID(p.UpdatePurchaseOrder))
		r.Post("/{id}/approve", withID(p.ApprovePurchaseOrder))
		r.Post("/{id}/send", withID(p.SendPurchaseOrder))
		r.Post("/{id}/cancel", withID(p.CancelPurchaseOrder))
		r.Post("/{id}/short-close", withID(p.ShortClosePurchaseOrder))
		r.Post("/{id}/close", withID(p.ClosePurchaseOrder))
	})
	r.Route("/goods-receipts", func(r chi.Router) {
		r.Get("/", p.ListGoodsReceipts)
		r.Post("/", p.CreateGoodsReceipt)
		r.Get("/{id}", withID(p.GetGoodsReceipt))
	})

	inv := a.Inventory
	r.Route("/inventory", func(r chi.Router) {
		r.Get("/", inv.ListStock)
		r.Get("/export", inv.ExportStock)
		r.Get("/{id}", withStockID(inv.GetStock))
		r.Post("/{id}/relocate", withStockID(inv.RelocateStock))
	})
	r.Route("/stock-issues", func(r chi.Router) {
		r.Get("/", inv.ListStockIssues)
		r.Post("/", inv.CreateStockIssue)
		r.Get("/{id}", withID(inv.GetStockIssue))
		r.Post("/{id}/cancel", withID(inv.CancelStockIssue))
	})

	q := a.Quality
	r.Route("/inspections", func(r chi.Router) {
		r.Get("/", q.ListInspections)
		r.Post("/", q.CreateInspection)
		r.Get("/{id}", withID(q.GetInspection))
		r.Post("/{id}/complete", withID(q.CompleteInspection))
		r.Post("/{id}/cancel", withID(q.CancelInspection))
	})
	r.Route("/qc-releases", func(r chi.Router) {
		r.Get("/", q.ListQCReleases)
		r.Post("/", q.CreateQCRelease)
		r.Get("/{id}", withID(q.GetQCRelease))
		r.Post("/{id}/complete", withID(q.CompleteQCRelease))
		r.Post("/{id}/cancel", withID(q.CancelQCRelease))
	})
	r.Route("/ncrs", func(r chi.Router) {
		r.Get("/", q.ListNCRs)
		r.Post("/", q.CreateNCR)
		r.Get("/{id}", withID(q.GetNCR))
		r.Put("/{id}", withID(q.UpdateNCR))
		r.Post("/{id}/review", withID(q.ReviewNCR))
		r.Post("/{id}/disposition", withID(q.DispositionNCR))
		r.Post("/{id}/close", withID(q.CloseNCR))
	})

	f := a.Finance
	r.Route("/invoices", func(r chi.Router) {
		r.Get("/", f.ListInvoices)
		r.Post("/", f.CreateInvoice)
		r.Get("/export", f.ExportInvoices)
		r.Get("/{id}", withID(f.GetInvoice))
		r.Post("/{id}/issue", withID(f.IssueInvoice))
		r.Post("/{id}/cancel", withID(f.CancelInvoice))
	})
	r.Route("/payments", func(r chi.Router) {
		r.Get("/", f.ListPayments)
		r.Post("/", f.RecordPayment)
		r.Get("/{id}", withID(f.GetPayment))
		r.Post("/{id}/void", withID(f.VoidPayment))
	})

	ad := a.Admin
	r.Route("/users", func(r chi.Router) {
		r.Get("/", ad.ListUsers)
		r.Post("/", ad.CreateUser)
		r.Get("/{id}", withID(ad.GetUser))
		r.Put("/{id}", withID(ad.UpdateUser))
		r.Delete("/{id}", withID(ad.DeleteUser))
		r.Post("/{id}/password", withID(ad.ResetPassword))
	})
	r.Route("/permissions", func(r chi.Router) {
		r.Get("/", ad.ListPermissions)
		r.Get("/modules", ad.ListModules)
		r.Put("/{role}", func(w http.ResponseWriter, r *http.Request) {
			ad.SetPermissions(w, r, chi.URLParam(r, "role"))
		})
	})
	r.Get("/audit", ad.ListAudit)
}
