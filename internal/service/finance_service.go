package service

import (
	"context"
	"errors"
	"log"
	"net/http"

	"connectrpc.com/connect"

	"github.com/CristhianDaza/finControl/internal/access"
	"github.com/CristhianDaza/finControl/internal/aggregate"
	"github.com/CristhianDaza/finControl/internal/currency"
	"github.com/CristhianDaza/finControl/internal/export"
	"github.com/CristhianDaza/finControl/internal/ledger"
	"github.com/CristhianDaza/finControl/internal/notify"
	"github.com/CristhianDaza/finControl/internal/recurring"
	"github.com/CristhianDaza/finControl/internal/search"
	"github.com/CristhianDaza/finControl/internal/session"
)

// ServiceName prefixes every procedure path.
const ServiceName = "fincontrol.v1.FinanceService"

// Deps are the engines a FinanceService exposes. Search, Exporter and
// ExportSink may be nil.
type Deps struct {
	Session    *session.Session
	Ledger     *ledger.Engine
	Scheduler  *recurring.Scheduler
	Access     *access.Service
	Currency   *currency.Service
	Aggregator *aggregate.Aggregator
	Notify     *notify.Service
	Search     *search.Service
	Exporter   *export.Exporter
	ExportSink export.Sink
	// SchedulerToken guards ProcessAllRecurring. Empty disables it.
	SchedulerToken string
}

type FinanceService struct {
	sess           *session.Session
	ledger         *ledger.Engine
	scheduler      *recurring.Scheduler
	access         *access.Service
	currency       *currency.Service
	agg            *aggregate.Aggregator
	notify         *notify.Service
	search         *search.Service
	exporter       *export.Exporter
	exportSink     export.Sink
	schedulerToken string
}

func NewFinanceService(d Deps) *FinanceService {
	return &FinanceService{
		sess:           d.Session,
		ledger:         d.Ledger,
		scheduler:      d.Scheduler,
		access:         d.Access,
		currency:       d.Currency,
		agg:            d.Aggregator,
		notify:         d.Notify,
		search:         d.Search,
		exporter:       d.Exporter,
		exportSink:     d.ExportSink,
		schedulerToken: d.SchedulerToken,
	}
}

// WireOptions configure the engines built by Wire.
type WireOptions struct {
	Access    []access.Option
	Notify    []notify.Option
	Recurring []recurring.Option
}

// Wire builds every engine around sess and installs the access service as
// the write gate and the notify service as the notifier.
func Wire(sess *session.Session, o WireOptions) Deps {
	l := ledger.NewEngine(sess)
	a := access.NewService(sess, o.Access...)
	n := notify.New(sess, o.Notify...)
	sess.Gate = a
	sess.Notifier = n
	return Deps{
		Session:    sess,
		Ledger:     l,
		Scheduler:  recurring.NewScheduler(sess, l, o.Recurring...),
		Access:     a,
		Currency:   currency.NewService(sess),
		Aggregator: aggregate.New(sess),
		Notify:     n,
		Exporter:   export.New(sess),
	}
}

// Handler returns the path prefix and handler serving every procedure.
func (s *FinanceService) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)
	mux := http.NewServeMux()
	r := &router{mux: mux, opts: opts}
	s.registerLedger(r)
	s.registerRecurring(r)
	s.registerAccess(r)
	s.registerBudgets(r)
	s.registerNotifications(r)
	s.registerSearch(r)
	s.registerCurrencies(r)
	return "/" + ServiceName + "/", mux
}

type router struct {
	mux  *http.ServeMux
	opts []connect.HandlerOption
}

// readOnlyMarker is implemented by every response through the embedded
// Status.
type readOnlyMarker interface {
	markReadOnly()
}

// handle registers fn under method. Engine errors are translated here;
// session.ErrReadOnly becomes an empty response flagged readOnly.
func handle[Req, Res any](r *router, method string, fn func(context.Context, *connect.Request[Req]) (*connect.Response[Res], error)) {
	procedure := "/" + ServiceName + "/" + method
	r.mux.Handle(procedure, connect.NewUnaryHandler(procedure,
		func(ctx context.Context, req *connect.Request[Req]) (*connect.Response[Res], error) {
			res, err := fn(ctx, req)
			if err == nil {
				return res, nil
			}
			if errors.Is(err, session.ErrReadOnly) {
				msg := new(Res)
				if m, ok := any(msg).(readOnlyMarker); ok {
					m.markReadOnly()
					out := connect.NewResponse(msg)
					out.Header().Set(ReadOnlyHeader, "true")
					return out, nil
				}
			}
			cerr := toConnectError(err)
			if cerr.Code() == connect.CodeInternal {
				log.Printf("[Server] %s failed: %v", method, err)
			}
			return nil, cerr
		},
		r.opts...,
	))
}
