package handler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/rl1809/duka/internal/core/domain"
	"github.com/rl1809/duka/internal/core/service"
	"github.com/rl1809/duka/internal/logger"
)

type GRPCHandler struct {
	identity *service.IdentityService
	sales    *service.SaleService
	history  *service.HistoryService
	log      *zap.Logger
}

var _ SaleServiceServer = (*GRPCHandler)(nil)

func NewGRPCHandler(svc Services, log *zap.Logger) *GRPCHandler {
	return &GRPCHandler{
		identity: svc.Identity,
		sales:    svc.Sales,
		history:  svc.History,
		log:      logger.OrNop(log),
	}
}

// AuthInterceptor resolves the bearer token in the authorization metadata
// into a session for every call.
func (h *GRPCHandler) AuthInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (interface{}, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	var tok string
	if vals := md.Get(authorizationHeader); len(vals) > 0 {
		tok, _ = bearerToken(vals[0])
	}
	if tok == "" {
		return nil, h.status(info.FullMethod, domain.ErrInvalidToken)
	}
	sess, err := h.identity.Resolve(ctx, tok)
	if err != nil {
		return nil, h.status(info.FullMethod, err)
	}
	return next(withSession(ctx, sess), req)
}

func (h *GRPCHandler) Sell(ctx context.Context, req *SellRequest) (*SellResponse, error) {
	res, err := h.sales.Sell(ctx, sessionFrom(ctx), service.SellRequest{
		StockID:      req.StockID,
		CustomerName: req.CustomerName,
		Quantity:     int(req.Quantity),
		RequestID:    req.RequestID,
	})
	if err != nil {
		return nil, h.status(sellMethod, err)
	}
	return &SellResponse{
		SaleID:    res.Sale.ID,
		Remaining: int32(res.Stock.Count),
		Message:   res.Message,
		Warning:   res.Warning,
	}, nil
}

func (h *GRPCHandler) ListSales(ctx context.Context, req *ListSalesRequest) (*ListSalesResponse, error) {
	var rng domain.DateRange
	if req.FromMs != 0 {
		from := time.UnixMilli(req.FromMs)
		rng.From = &from
	}
	if req.ToMs != 0 {
		to := time.UnixMilli(req.ToMs)
		rng.To = &to
	}
	if err := checkRange(rng); err != nil {
		return nil, h.status(listSalesMethod, err)
	}

	view, err := h.history.Sales(ctx, sessionFrom(ctx), rng)
	if err != nil {
		return nil, h.status(listSalesMethod, err)
	}

	resp := &ListSalesResponse{
		Sales: make([]SaleLine, 0, len(view.Sales)),
		Shown: int32(view.Shown),
		Total: int32(view.Total),
	}
	for _, s := range view.Sales {
		resp.Sales = append(resp.Sales, SaleLine{
			SaleID:       s.ID,
			StockID:      s.StockID,
			StockName:    s.StockName,
			SoldBy:       s.SoldBy,
			SoldByName:   s.SoldByName,
			CustomerName: s.CustomerName,
			Quantity:     int32(s.Quantity),
			DateTimeMs:   s.DateTime.UnixMilli(),
		})
	}
	return resp, nil
}

func (h *GRPCHandler) status(method string, err error) error {
	code := codeFor(err)
	if code == codes.Internal {
		h.log.Error("rpc failed", zap.String("method", method), zap.Error(err))
	}
	return status.Error(code, domain.UserMessage(err))
}

func codeFor(err error) codes.Code {
	var (
		validation   *domain.ValidationError
		notFound     *domain.NotFoundError
		conflict     *domain.ConflictError
		unauthorized *domain.UnauthorizedError
		forbidden    *domain.ForbiddenError
	)
	switch {
	case errors.Is(err, domain.ErrDuplicateRequest):
		return codes.AlreadyExists
	case errors.Is(err, domain.ErrInsufficientStock):
		return codes.FailedPrecondition
	case errors.As(err, &validation):
		return codes.InvalidArgument
	case errors.As(err, &unauthorized):
		return codes.Unauthenticated
	case errors.As(err, &forbidden):
		return codes.PermissionDenied
	case errors.As(err, &notFound):
		return codes.NotFound
	case errors.As(err, &conflict):
		return codes.Aborted
	}
	return codes.Internal
}
