package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/authrpc"
	pb "github.com/dmitrijs2005/gophauth/internal/proto"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
)

// Session is the credential pair of the logged-in user.
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	User         *pb.User
}

type GRPCClient struct {
	endpointURL string
	timeout     time.Duration
	conn        *grpc.ClientConn
	client      pb.AuthServiceClient

	mu      sync.RWMutex
	session *Session

	// serializes refresh-token redemption; refresh tokens are single-use
	refreshMu sync.Mutex
}

// NewGophAuthClient connects to endpointURL. Extra dial options are appended
// after the defaults.
func NewGophAuthClient(endpointURL string, timeout time.Duration, opts ...grpc.DialOption) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: endpointURL, timeout: timeout}

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(c.accessTokenInterceptor),
	}, opts...)

	conn, err := grpc.NewClient(endpointURL, dialOpts...)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	c.client = pb.NewAuthServiceClient(conn)
	return c, nil
}

func (s *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {

	if authrpc.MethodAuth(method) == authrpc.AuthNone {
		return invoker(ctx, method, req, reply, cc, opts...)
	}

	sess := s.Session()
	if sess == nil {
		return ErrNotLoggedIn
	}

	err := invoker(authrpc.WithBearer(ctx, sess.AccessToken), method, req, reply, cc, opts...)
	if status.Code(err) != codes.Unauthenticated || sess.RefreshToken == "" {
		return err
	}

	if rerr := s.redeem(ctx, sess.RefreshToken); rerr != nil {
		return err
	}

	// tokens refreshed, retrying once with the new access token
	sess = s.Session()
	if sess == nil {
		return err
	}
	return invoker(authrpc.WithBearer(ctx, sess.AccessToken), method, req, reply, cc, opts...)
}

// redeem exchanges used for a new pair unless another call already did.
func (s *GRPCClient) redeem(ctx context.Context, used string) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	if cur := s.Session(); cur != nil && cur.RefreshToken != used {
		return nil
	}

	resp, err := s.client.Refresh(ctx, &pb.RefreshRequest{RefreshToken: used})
	if err != nil {
		if status.Code(err) == codes.Unauthenticated {
			s.setSession(nil)
		}
		return err
	}
	s.setSession(sessionFrom(resp))
	return nil
}

func sessionFrom(resp *pb.AuthResponse) *Session {
	return &Session{
		AccessToken:  resp.GetAccessToken(),
		RefreshToken: resp.GetRefreshToken(),
		ExpiresAt:    time.Now().Add(time.Duration(resp.GetExpiresIn()) * time.Second),
		User:         resp.GetUser(),
	}
}

// Session returns a copy of the current session, or nil when logged out.
func (s *GRPCClient) Session() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return nil
	}
	cp := *s.session
	return &cp
}

func (s *GRPCClient) setSession(sess *Session) {
	s.mu.Lock()
	s.session = sess
	s.mu.Unlock()
}

func (s *GRPCClient) LoggedIn() bool {
	return s.Session() != nil
}

func (s *GRPCClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *GRPCClient) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	resp, err := s.client.Ping(ctx, &emptypb.Empty{})
	if err != nil {
		return s.mapError(err)
	}
	if resp.GetStatus() != "OK" {
		return ErrUnavailable
	}
	return nil
}

func (s *GRPCClient) Register(ctx context.Context, firstName, lastName, email, password string) (*pb.User, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	resp, err := s.client.Register(ctx, &pb.RegisterRequest{
		FirstName: firstName, LastName: lastName, Email: email, Password: password,
	})
	if err != nil {
		return nil, s.mapError(err)
	}
	s.setSession(sessionFrom(resp))
	return resp.GetUser(), nil
}

func (s *GRPCClient) Login(ctx context.Context, email, password string) (*pb.User, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	resp, err := s.client.Login(ctx, &pb.LoginRequest{Email: email, Password: password})
	if err != nil {
		return nil, s.mapError(err)
	}
	s.setSession(sessionFrom(resp))
	return resp.GetUser(), nil
}

// Refresh rotates the session's token pair explicitly.
func (s *GRPCClient) Refresh(ctx context.Context) error {
	sess := s.Session()
	if sess == nil {
		return ErrNotLoggedIn
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return s.mapError(s.redeem(ctx, sess.RefreshToken))
}

func (s *GRPCClient) Me(ctx context.Context) (*pb.User, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	u, err := s.client.Me(ctx, &emptypb.Empty{})
	if err != nil {
		return nil, s.mapError(err)
	}
	return u, nil
}

func (s *GRPCClient) UpdateProfile(ctx context.Context, firstName, lastName string) (*pb.User, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	u, err := s.client.UpdateProfile(ctx, &pb.UpdateProfileRequest{FirstName: firstName, LastName: lastName})
	if err != nil {
		return nil, s.mapError(err)
	}
	return u, nil
}

// ChangePassword ends the local session on success; the server has
// revoked every token.
func (s *GRPCClient) ChangePassword(ctx context.Context, current, next string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.client.ChangePassword(ctx, &pb.ChangePasswordRequest{CurrentPassword: current, NewPassword: next}); err != nil {
		return s.mapError(err)
	}
	s.setSession(nil)
	return nil
}

// Logout always forgets the local session, even if the server call fails.
func (s *GRPCClient) Logout(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	defer s.setSession(nil)

	_, err := s.client.Logout(ctx, &emptypb.Empty{})
	return s.mapError(err)
}

func (s *GRPCClient) DeleteAccount(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.client.DeleteAccount(ctx, &emptypb.Empty{}); err != nil {
		return s.mapError(err)
	}
	s.setSession(nil)
	return nil
}

func (s *GRPCClient) Close() error {
	return s.conn.Close()
}

func (s *GRPCClient) mapError(err error) error {
	if err == nil || errors.Is(err, ErrNotLoggedIn) {
		return err
	}
	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.Unauthenticated:
		return ErrUnauthorized
	case codes.PermissionDenied:
		return fmt.Errorf("%w: %s", ErrPermissionDenied, st.Message())
	case codes.Unavailable, codes.DeadlineExceeded:
		return ErrUnavailable
	case codes.AlreadyExists:
		return ErrAlreadyExists
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", ErrInvalidInput, st.Message())
	case codes.NotFound:
		return ErrNotFound
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}
