package server

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client talks to a running ScannerService.
type Client struct {
	conn  *grpc.ClientConn
	token string
}

// Dial connects to the agent at target. token is sent as a bearer token
// when non-empty.
func Dial(target, token string) (*Client, error) {
	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("Dial: %w", err)
	}
	return &Client{conn: conn, token: token}, nil
}

// Close releases the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Scan runs a remote scan for req.URL.
func (c *Client) Scan(ctx context.Context, req ScanRequest) (*ScanResult, error) {
	var out ScanResult
	if err := c.invoke(ctx, ScanMethod, req, &out); err != nil {
		return nil, fmt.Errorf("Scan: %w", err)
	}
	return &out, nil
}

// Report files a phishing report remotely.
func (c *Client) Report(ctx context.Context, rawURL string) (*ReportResult, error) {
	var out ReportResult
	if err := c.invoke(ctx, ReportMethod, ReportRequest{URL: rawURL}, &out); err != nil {
		return nil, fmt.Errorf("Report: %w", err)
	}
	return &out, nil
}

// Serving reports whether the remote health service marks the scanner as SERVING.
func (c *Client) Serving(ctx context.Context) (bool, error) {
	resp, err := healthpb.NewHealthClient(c.conn).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return false, fmt.Errorf("Serving: %w", err)
	}
	return resp.GetStatus() == healthpb.HealthCheckResponse_SERVING, nil
}

func (c *Client) invoke(ctx context.Context, method string, req, resp any) error {
	in, err := toStruct(req)
	if err != nil {
		return err
	}
	if c.token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.token)
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, method, in, out); err != nil {
		return err
	}
	return fromStruct(out, resp)
}
