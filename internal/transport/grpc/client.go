package grpcx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/cwrk-planet/ephemeral-chat/internal/domain"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const mdRequestID = "x-request-id"

type Options struct {
	Target  string
	Timeout time.Duration
	// Dialer replaces the network dialer, e.g. with a bufconn listener in tests.
	Dialer func(context.Context, string) (net.Conn, error)
}

// Client talks to RoomService and maps statuses back to domain errors.
type Client struct {
	conn    *grpc.ClientConn
	timeout time.Duration
}

func NewClient(opts Options) (*Client, error) {
	if opts.Target == "" {
		return nil, errors.New("room client: empty target")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
	if opts.Dialer != nil {
		dialOpts = append(dialOpts, grpc.WithContextDialer(opts.Dialer))
	}

	conn, err := grpc.NewClient(opts.Target, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("room client: new client failed: %w", err)
	}
	return &Client{conn: conn, timeout: opts.Timeout}, nil
}

func (c *Client) Close() error { return c.conn.Close() }

// withOutboundMeta tags the call with a request id for server logs.
func withOutboundMeta(ctx context.Context) context.Context {
	return metadata.AppendToOutgoingContext(ctx, mdRequestID, uuid.NewString())
}

func (c *Client) invoke(ctx context.Context, method string, in, out any) error {
	rpcCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.conn.Invoke(withOutboundMeta(rpcCtx), fullMethod(method), in, out, callCodec()); err != nil {
		return fromStatus(err)
	}
	return nil
}

func (c *Client) CreateRoom(ctx context.Context) (*Room, error) {
	out := new(Room)
	if err := c.invoke(ctx, "CreateRoom", &CreateRoomRequest{}, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetRoom(ctx context.Context, roomID string) (*Room, error) {
	out := new(Room)
	if err := c.invoke(ctx, "GetRoom", &RoomRequest{RoomID: roomID}, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetRemainingTTL(ctx context.Context, roomID string) (time.Duration, error) {
	out := new(TTLResponse)
	if err := c.invoke(ctx, "GetRemainingTTL", &RoomRequest{RoomID: roomID}, out); err != nil {
		return 0, err
	}
	return time.Duration(out.TTLSeconds) * time.Second, nil
}

func (c *Client) DestroyRoom(ctx context.Context, roomID string) error {
	return c.invoke(ctx, "DestroyRoom", &RoomRequest{RoomID: roomID}, new(DestroyRoomResponse))
}

func (c *Client) AppendMessage(ctx context.Context, roomID, sender, text string) (*Message, error) {
	out := new(Message)
	in := &AppendMessageRequest{RoomID: roomID, Sender: sender, Text: text}
	if err := c.invoke(ctx, "AppendMessage", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListMessages(ctx context.Context, roomID string) ([]Message, error) {
	out := new(ListMessagesResponse)
	if err := c.invoke(ctx, "ListMessages", &RoomRequest{RoomID: roomID}, out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// Subscribe opens the event stream. It is not bounded by the client timeout;
// cancel ctx to stop it.
func (c *Client) Subscribe(ctx context.Context, roomIDs ...string) (*EventStream, error) {
	stream, err := c.conn.NewStream(withOutboundMeta(ctx), &subscribeStream, fullMethod("Subscribe"), callCodec())
	if err != nil {
		return nil, fromStatus(err)
	}
	s := &grpc.GenericClientStream[SubscribeRequest, Event]{ClientStream: stream}
	if err := s.SendMsg(&SubscribeRequest{RoomIDs: roomIDs}); err != nil {
		return nil, fromStatus(err)
	}
	if err := s.CloseSend(); err != nil {
		return nil, fromStatus(err)
	}
	return &EventStream{stream: s}, nil
}

type EventStream struct {
	stream grpc.ServerStreamingClient[Event]
}

// Recv returns io.EOF once every subscribed room is destroyed.
func (s *EventStream) Recv() (*Event, error) {
	evt, err := s.stream.Recv()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fromStatus(err)
	}
	return evt, nil
}

func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", domain.ErrValidation, st.Message())
	case codes.NotFound:
		return domain.ErrRoomNotFound
	case codes.Unavailable:
		return fmt.Errorf("%w: %s", domain.ErrStoreUnavailable, st.Message())
	default:
		return err
	}
}
