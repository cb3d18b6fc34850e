package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// IdentityService is described by hand over protobuf well-known types.
const (
	IdentityServiceName = "dealerdesk.identity.v1.IdentityService"
	VerifyTokenMethod   = "/" + IdentityServiceName + "/VerifyToken"
)

// IdentityServer verifies bearer tokens for other internal services.
// The response struct carries userId, email, role and expiresAt (RFC 3339).
type IdentityServer interface {
	VerifyToken(ctx context.Context, token *wrapperspb.StringValue) (*structpb.Struct, error)
}

func RegisterIdentityServer(r grpc.ServiceRegistrar, srv IdentityServer) {
	r.RegisterService(&identityServiceDesc, srv)
}

var identityServiceDesc = grpc.ServiceDesc{
	ServiceName: IdentityServiceName,
	HandlerType: (*IdentityServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "VerifyToken", Handler: verifyTokenHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "dealerdesk/identity/v1/identity.proto",
}

func verifyTokenHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(IdentityServer).VerifyToken(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: VerifyTokenMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(IdentityServer).VerifyToken(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

// IdentityClient calls IdentityService over an existing connection.
type IdentityClient struct {
	cc grpc.ClientConnInterface
}

func NewIdentityClient(cc grpc.ClientConnInterface) *IdentityClient {
	return &IdentityClient{cc: cc}
}

func (c *IdentityClient) VerifyToken(ctx context.Context, token string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, VerifyTokenMethod, wrapperspb.String(token), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
