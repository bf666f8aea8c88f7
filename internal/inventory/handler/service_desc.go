package handler

import (
	"context"

	"google.golang.org/grpc"
)

const ServiceName = "omnipos.inventory.v1.InventoryService"

// InventoryServiceServer is the server API for the inventory service.
type InventoryServiceServer interface {
	Reserve(context.Context, *ReserveRequest) (*ReservationResponse, error)
	Release(context.Context, *SettleRequest) (*SettleResponse, error)
	Commit(context.Context, *SettleRequest) (*SettleResponse, error)
	ReleaseByReference(context.Context, *ReferenceRequest) (*SettleResponse, error)
	CommitByReference(context.Context, *ReferenceRequest) (*SettleResponse, error)
	ExpireReservations(context.Context, *ExpireRequest) (*ExpireResponse, error)
	Adjust(context.Context, *AdjustRequest) (*AdjustResponse, error)
	BulkAdjust(context.Context, *BulkAdjustRequest) (*BulkAdjustResponse, error)
	GetInventory(context.Context, *GetInventoryRequest) (*InventoryEntry, error)
	ListInventory(context.Context, *ListInventoryRequest) (*ListInventoryResponse, error)
	StockSummary(context.Context, *StockSummaryRequest) (*StockSummaryResponse, error)
	GetHistory(context.Context, *HistoryRequest) (*HistoryResponse, error)
	Replay(context.Context, *ReplayRequest) (*ReplayResponse, error)
	Export(context.Context, *ExportRequest) (*ExportResponse, error)
	SyncFromCatalog(context.Context, *SyncRequest) (*SyncResponse, error)
}

func RegisterInventoryServiceServer(s grpc.ServiceRegistrar, srv InventoryServiceServer) {
	s.RegisterService(&InventoryServiceDesc, srv)
}

var InventoryServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*InventoryServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Reserve", InventoryServiceServer.Reserve),
		unary("Release", InventoryServiceServer.Release),
		unary("Commit", InventoryServiceServer.Commit),
		unary("ReleaseByReference", InventoryServiceServer.ReleaseByReference),
		unary("CommitByReference", InventoryServiceServer.CommitByReference),
		unary("ExpireReservations", InventoryServiceServer.ExpireReservations),
		unary("Adjust", InventoryServiceServer.Adjust),
		unary("BulkAdjust", InventoryServiceServer.BulkAdjust),
		unary("GetInventory", InventoryServiceServer.GetInventory),
		unary("ListInventory", InventoryServiceServer.ListInventory),
		unary("StockSummary", InventoryServiceServer.StockSummary),
		unary("GetHistory", InventoryServiceServer.GetHistory),
		unary("Replay", InventoryServiceServer.Replay),
		unary("Export", InventoryServiceServer.Export),
		unary("SyncFromCatalog", InventoryServiceServer.SyncFromCatalog),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "omnipos/inventory/v1/inventory.json",
}

func fullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// unary builds the method descriptor that decodes Req, runs the interceptor chain and calls fn.
func unary[Req, Resp any](method string, fn func(InventoryServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			server := srv.(InventoryServiceServer)
			if interceptor == nil {
				return fn(server, ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: fullMethod(method),
			}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return fn(server, ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// InventoryServiceClient calls the inventory service over a connection using the JSON codec.
type InventoryServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewInventoryServiceClient(cc grpc.ClientConnInterface) *InventoryServiceClient {
	return &InventoryServiceClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, c *InventoryServiceClient, method string, in interface{}, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, fullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *InventoryServiceClient) Reserve(ctx context.Context, in *ReserveRequest, opts ...grpc.CallOption) (*ReservationResponse, error) {
	return invoke[ReservationResponse](ctx, c, "Reserve", in, opts)
}

func (c *InventoryServiceClient) Release(ctx context.Context, in *SettleRequest, opts ...grpc.CallOption) (*SettleResponse, error) {
	return invoke[SettleResponse](ctx, c, "Release", in, opts)
}

func (c *InventoryServiceClient) Commit(ctx context.Context, in *SettleRequest, opts ...grpc.CallOption) (*SettleResponse, error) {
	return invoke[SettleResponse](ctx, c, "Commit", in, opts)
}

func (c *InventoryServiceClient) ReleaseByReference(ctx context.Context, in *ReferenceRequest, opts ...grpc.CallOption) (*SettleResponse, error) {
	return invoke[SettleResponse](ctx, c, "ReleaseByReference", in, opts)
}

func (c *InventoryServiceClient) CommitByReference(ctx context.Context, in *ReferenceRequest, opts ...grpc.CallOption) (*SettleResponse, error) {
	return invoke[SettleResponse](ctx, c, "CommitByReference", in, opts)
}

func (c *InventoryServiceClient) ExpireReservations(ctx context.Context, in *ExpireRequest, opts ...grpc.CallOption) (*ExpireResponse, error) {
	return invoke[ExpireResponse](ctx, c, "ExpireReservations", in, opts)
}

func (c *InventoryServiceClient) Adjust(ctx context.Context, in *AdjustRequest, opts ...grpc.CallOption) (*AdjustResponse, error) {
	return invoke[AdjustResponse](ctx, c, "Adjust", in, opts)
}

func (c *InventoryServiceClient) BulkAdjust(ctx context.Context, in *BulkAdjustRequest, opts ...grpc.CallOption) (*BulkAdjustResponse, error) {
	return invoke[BulkAdjustResponse](ctx, c, "BulkAdjust", in, opts)
}

func (c *InventoryServiceClient) GetInventory(ctx context.Context, in *GetInventoryRequest, opts ...grpc.CallOption) (*InventoryEntry, error) {
	return invoke[InventoryEntry](ctx, c, "GetInventory", in, opts)
}

func (c *InventoryServiceClient) ListInventory(ctx context.Context, in *ListInventoryRequest, opts ...grpc.CallOption) (*ListInventoryResponse, error) {
	return invoke[ListInventoryResponse](ctx, c, "ListInventory", in, opts)
}

func (c *InventoryServiceClient) StockSummary(ctx context.Context, in *StockSummaryRequest, opts ...grpc.CallOption) (*StockSummaryResponse, error) {
	return invoke[StockSummaryResponse](ctx, c, "StockSummary", in, opts)
}

func (c *InventoryServiceClient) GetHistory(ctx context.Context, in *HistoryRequest, opts ...grpc.CallOption) (*HistoryResponse, error) {
	return invoke[HistoryResponse](ctx, c, "GetHistory", in, opts)
}

func (c *InventoryServiceClient) Replay(ctx context.Context, in *ReplayRequest, opts ...grpc.CallOption) (*ReplayResponse, error) {
	return invoke[ReplayResponse](ctx, c, "Replay", in, opts)
}

func (c *InventoryServiceClient) Export(ctx context.Context, in *ExportRequest, opts ...grpc.CallOption) (*ExportResponse, error) {
	return invoke[ExportResponse](ctx, c, "Export", in, opts)
}

func (c *InventoryServiceClient) SyncFromCatalog(ctx context.Context, in *SyncRequest, opts ...grpc.CallOption) (*SyncResponse, error) {
	return invoke[SyncResponse](ctx, c, "SyncFromCatalog", in, opts)
}
