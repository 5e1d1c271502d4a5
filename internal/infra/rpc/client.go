package rpc

import (
	"context"
	"errors"
	"io"
	"iter"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"bazaar/internal/app/dto"
)

// Client is a typed caller for the negotiation service.
type Client struct {
	conn        *grpc.ClientConn
	token       string
	callTimeout time.Duration
}

// Dial connects to addr without transport security. Extra options are appended, which is how tests
// inject an in-memory dialer.
func Dial(addr, token string, opts ...grpc.DialOption) (*Client, error) {
	if addr == "" {
		return nil, errors.New("rpc: address required")
	}
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, token: token, callTimeout: 5 * time.Second}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) outgoing(ctx context.Context) context.Context {
	if c.token == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.token)
}

func invoke[Req any, Resp any](ctx context.Context, c *Client, method string, req *Req) (*Resp, error) {
	ctx, cancel := context.WithTimeout(c.outgoing(ctx), c.callTimeout)
	defer cancel()
	out := new(Resp)
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetConversation(ctx context.Context, req *GetConversationRequest) (*dto.Conversation, error) {
	return invoke[GetConversationRequest, dto.Conversation](ctx, c, "GetConversation", req)
}

func (c *Client) ListMessages(ctx context.Context, req *ListMessagesRequest) (*dto.MessageList, error) {
	return invoke[ListMessagesRequest, dto.MessageList](ctx, c, "ListMessages", req)
}

func (c *Client) SendMessage(ctx context.Context, req *SendMessageRequest) (*dto.Message, error) {
	return invoke[SendMessageRequest, dto.Message](ctx, c, "SendMessage", req)
}

func (c *Client) CreateOffer(ctx context.Context, req *CreateOfferRequest) (*dto.Offer, error) {
	return invoke[CreateOfferRequest, dto.Offer](ctx, c, "CreateOffer", req)
}

func (c *Client) AnswerOffer(ctx context.Context, req *AnswerOfferRequest) (*dto.Offer, error) {
	return invoke[AnswerOfferRequest, dto.Offer](ctx, c, "AnswerOffer", req)
}

func (c *Client) CounterOffer(ctx context.Context, req *CounterOfferRequest) (*dto.CounterResult, error) {
	return invoke[CounterOfferRequest, dto.CounterResult](ctx, c, "CounterOffer", req)
}

// WatchMessages yields snapshots until ctx ends or the server closes the stream.
func (c *Client) WatchMessages(ctx context.Context, req *WatchMessagesRequest) iter.Seq2[dto.MessageList, error] {
	return receive[WatchMessagesRequest, dto.MessageList](ctx, c, "WatchMessages", req)
}

func (c *Client) WatchConversations(ctx context.Context, req *WatchConversationsRequest) iter.Seq2[dto.ConversationList, error] {
	return receive[WatchConversationsRequest, dto.ConversationList](ctx, c, "WatchConversations", req)
}

func receive[Req any, T any](ctx context.Context, c *Client, name string, req *Req) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		ctx, cancel := context.WithCancel(c.outgoing(ctx))
		defer cancel()
		desc := &grpc.StreamDesc{StreamName: name, ServerStreams: true}
		stream, err := c.conn.NewStream(ctx, desc, "/"+ServiceName+"/"+name)
		if err != nil {
			yield(zero, err)
			return
		}
		if err := stream.SendMsg(req); err != nil {
			yield(zero, err)
			return
		}
		if err := stream.CloseSend(); err != nil {
			yield(zero, err)
			return
		}
		for {
			var snapshot T
			if err := stream.RecvMsg(&snapshot); err != nil {
				if !errors.Is(err, io.EOF) {
					yield(zero, err)
				}
				return
			}
			if !yield(snapshot, nil) {
				return
			}
		}
	}
}
