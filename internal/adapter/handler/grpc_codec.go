package handler

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

// CodecName is the content subtype clients select with
// grpc.CallContentSubtype to talk to SaleService.
const CodecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }

func (jsonCodec) Name() string { return CodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

const (
	saleServiceName     = "duka.v1.SaleService"
	sellMethod          = "/" + saleServiceName + "/Sell"
	listSalesMethod     = "/" + saleServiceName + "/ListSales"
	authorizationHeader = "authorization"
)

type SellRequest struct {
	StockID      string `json:"stock_id"`
	CustomerName string `json:"customer_name"`
	Quantity     int32  `json:"quantity"`
	RequestID    string `json:"request_id,omitempty"`
}

type SellResponse struct {
	SaleID    string `json:"sale_id"`
	Remaining int32  `json:"remaining"`
	Message   string `json:"message,omitempty"`
	Warning   string `json:"warning,omitempty"`
}

// ListSalesRequest bounds are unix milliseconds. Zero leaves a bound open.
type ListSalesRequest struct {
	FromMs int64 `json:"from_ms,omitempty"`
	ToMs   int64 `json:"to_ms,omitempty"`
}

type ListSalesResponse struct {
	Sales []SaleLine `json:"sales"`
	Shown int32      `json:"shown"`
	Total int32      `json:"total"`
}

type SaleLine struct {
	SaleID       string `json:"sale_id"`
	StockID      string `json:"stock_id"`
	StockName    string `json:"stock_name"`
	SoldBy       string `json:"sold_by"`
	SoldByName   string `json:"sold_by_name"`
	CustomerName string `json:"customer_name"`
	Quantity     int32  `json:"quantity"`
	DateTimeMs   int64  `json:"datetime_ms"`
}

type SaleServiceServer interface {
	Sell(context.Context, *SellRequest) (*SellResponse, error)
	ListSales(context.Context, *ListSalesRequest) (*ListSalesResponse, error)
}

// RegisterSaleServiceServer mounts srv on s.
func RegisterSaleServiceServer(s grpc.ServiceRegistrar, srv SaleServiceServer) {
	s.RegisterService(&saleServiceDesc, srv)
}

var saleServiceDesc = grpc.ServiceDesc{
	ServiceName: saleServiceName,
	HandlerType: (*SaleServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Sell", Handler: sellHandler},
		{MethodName: "ListSales", Handler: listSalesHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "duka/v1/sale_service",
}

func sellHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(SellRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SaleServiceServer).Sell(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: sellMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SaleServiceServer).Sell(ctx, req.(*SellRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func listSalesHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ListSalesRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SaleServiceServer).ListSales(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: listSalesMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SaleServiceServer).ListSales(ctx, req.(*ListSalesRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// SaleServiceClient calls SaleService over any grpc connection using the
// JSON codec.
type SaleServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewSaleServiceClient(cc grpc.ClientConnInterface) *SaleServiceClient {
	return &SaleServiceClient{cc: cc}
}

func (c *SaleServiceClient) Sell(ctx context.Context, in *SellRequest, opts ...grpc.CallOption) (*SellResponse, error) {
	out := new(SellResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, sellMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *SaleServiceClient) ListSales(ctx context.Context, in *ListSalesRequest, opts ...grpc.CallOption) (*ListSalesResponse, error) {
	out := new(ListSalesResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, listSalesMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
