package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	pb "github.com/dmitrijs2005/gophauth/internal/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
)

// stubServer issues numbered token pairs and accepts only the latest ones.
type stubServer struct {
	pb.UnimplementedAuthServiceServer

	mu           sync.Mutex
	gen          int
	access       string
	refresh      string
	refreshCalls int
	logoutCalls  int
}

func (s *stubServer) rotate() *pb.AuthResponse {
	s.gen++
	s.access = fmt.Sprintf("a%d", s.gen)
	s.refresh = fmt.Sprintf("r%d", s.gen)
	return &pb.AuthResponse{
		AccessToken: s.access, RefreshToken: s.refresh, TokenType: "Bearer", ExpiresIn: 900,
		User: &pb.User{Id: "u1", Email: "a@b.c"},
	}
}

func (s *stubServer) authorized(ctx context.Context) error {
	md, _ := metadata.FromIncomingContext(ctx)
	v := md.Get("authorization")
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(v) == 0 || v[0] != "Bearer "+s.access {
		return status.Error(codes.Unauthenticated, "invalid token")
	}
	return nil
}

func (s *stubServer) Ping(context.Context, *emptypb.Empty) (*pb.PingResponse, error) {
	return &pb.PingResponse{Status: "OK"}, nil
}

func (s *stubServer) Register(_ context.Context, in *pb.RegisterRequest) (*pb.AuthResponse, error) {
	if in.GetEmail() == "taken@b.c" {
		return nil, status.Error(codes.AlreadyExists, "identity already exists")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rotate(), nil
}

func (s *stubServer) Login(_ context.Context, in *pb.LoginRequest) (*pb.AuthResponse, error) {
	if in.GetPassword() != "secret" {
		return nil, status.Error(codes.Unauthenticated, "invalid credentials")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rotate(), nil
}

func (s *stubServer) Refresh(_ context.Context, in *pb.RefreshRequest) (*pb.AuthResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshCalls++
	if in.GetRefreshToken() != s.refresh {
		return nil, status.Error(codes.Unauthenticated, "invalid token")
	}
	return s.rotate(), nil
}

func (s *stubServer) Me(ctx context.Context, _ *emptypb.Empty) (*pb.User, error) {
	if err := s.authorized(ctx); err != nil {
		return nil, err
	}
	return &pb.User{Id: "u1", Email: "a@b.c"}, nil
}

func (s *stubServer) UpdateProfile(ctx context.Context, in *pb.UpdateProfileRequest) (*pb.User, error) {
	if err := s.authorized(ctx); err != nil {
		return nil, err
	}
	if in.GetFirstName() == "" {
		return nil, status.Error(codes.InvalidArgument, "first_name: cannot be blank.")
	}
	return &pb.User{Id: "u1", Email: "a@b.c", FirstName: in.GetFirstName(), LastName: in.GetLastName()}, nil
}

func (s *stubServer) Logout(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	s.mu.Lock()
	s.logoutCalls++
	s.mu.Unlock()
	if err := s.authorized(ctx); err != nil {
		return nil, err
	}
	return &emptypb.Empty{}, nil
}

func (s *stubServer) ChangePassword(ctx context.Context, in *pb.ChangePasswordRequest) (*emptypb.Empty, error) {
	if err := s.authorized(ctx); err != nil {
		return nil, err
	}
	if in.GetCurrentPassword() != "secret" {
		return nil, status.Error(codes.PermissionDenied, "invalid current password")
	}
	return &emptypb.Empty{}, nil
}

// expireAccess invalidates the current access token and keeps the refresh token.
func (s *stubServer) expireAccess() {
	s.mu.Lock()
	s.access = "expired"
	s.mu.Unlock()
}

// revokeAll invalidates both tokens.
func (s *stubServer) revokeAll() {
	s.mu.Lock()
	s.access, s.refresh = "expired", "revoked"
	s.mu.Unlock()
}

func newTestClient(t *testing.T, srv pb.AuthServiceServer) *GRPCClient {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer()
	pb.RegisterAuthServiceServer(s, srv)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	c, err := NewGophAuthClient("passthrough:///bufnet", time.Second,
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestPing(t *testing.T) {
	c := newTestClient(t, &stubServer{})
	assert.NoError(t, c.Ping(context.Background()))
}

func TestProtectedCallWithoutSession(t *testing.T) {
	c := newTestClient(t, &stubServer{})

	_, err := c.Me(context.Background())
	assert.ErrorIs(t, err, ErrNotLoggedIn)
	assert.ErrorIs(t, c.Refresh(context.Background()), ErrNotLoggedIn)
}

func TestLoginStoresSession(t *testing.T) {
	c := newTestClient(t, &stubServer{})
	ctx := context.Background()

	u, err := c.Login(ctx, "a@b.c", "secret")
	require.NoError(t, err)
	assert.Equal(t, "a@b.c", u.GetEmail())

	sess := c.Session()
	require.NotNil(t, sess)
	assert.Equal(t, "a1", sess.AccessToken)
	assert.Equal(t, "r1", sess.RefreshToken)
	assert.True(t, sess.ExpiresAt.After(time.Now()))

	me, err := c.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, "u1", me.GetId())
	assert.Equal(t, "a@b.c", c.Session().User.GetEmail())
}

func TestLoginFailure(t *testing.T) {
	c := newTestClient(t, &stubServer{})

	_, err := c.Login(context.Background(), "a@b.c", "wrong")
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.False(t, c.LoggedIn())
}

func TestRegisterConflict(t *testing.T) {
	c := newTestClient(t, &stubServer{})

	_, err := c.Register(context.Background(), "A", "B", "taken@b.c", "secret")
	assert.ErrorIs(t, err, ErrAlreadyExists)

	_, err = c.Register(context.Background(), "A", "B", "new@b.c", "secret")
	require.NoError(t, err)
	assert.True(t, c.LoggedIn())
}

func TestAutoRefreshOnExpiredAccess(t *testing.T) {
	srv := &stubServer{}
	c := newTestClient(t, srv)
	ctx := context.Background()

	_, err := c.Login(ctx, "a@b.c", "secret")
	require.NoError(t, err)

	srv.expireAccess()

	_, err = c.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, srv.refreshCalls)
	assert.Equal(t, "a2", c.Session().AccessToken)
	assert.Equal(t, "r2", c.Session().RefreshToken)
}

func TestConcurrentCallsRefreshOnce(t *testing.T) {
	srv := &stubServer{}
	c := newTestClient(t, srv)
	ctx := context.Background()

	_, err := c.Login(ctx, "a@b.c", "secret")
	require.NoError(t, err)
	srv.expireAccess()

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Me(ctx)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, srv.refreshCalls)
}

func TestRefreshRejectedClearsSession(t *testing.T) {
	srv := &stubServer{}
	c := newTestClient(t, srv)
	ctx := context.Background()

	_, err := c.Login(ctx, "a@b.c", "secret")
	require.NoError(t, err)
	srv.revokeAll()

	_, err = c.Me(ctx)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.False(t, c.LoggedIn())
}

func TestExplicitRefresh(t *testing.T) {
	srv := &stubServer{}
	c := newTestClient(t, srv)
	ctx := context.Background()

	_, err := c.Login(ctx, "a@b.c", "secret")
	require.NoError(t, err)

	require.NoError(t, c.Refresh(ctx))
	assert.Equal(t, "r2", c.Session().RefreshToken)

	srv.revokeAll()
	assert.ErrorIs(t, c.Refresh(ctx), ErrUnauthorized)
	assert.False(t, c.LoggedIn())
}

func TestUpdateProfileInvalidInput(t *testing.T) {
	c := newTestClient(t, &stubServer{})
	ctx := context.Background()

	_, err := c.Login(ctx, "a@b.c", "secret")
	require.NoError(t, err)

	_, err = c.UpdateProfile(ctx, "", "B")
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Contains(t, err.Error(), "first_name")

	u, err := c.UpdateProfile(ctx, "Ann", "B")
	require.NoError(t, err)
	assert.Equal(t, "Ann", u.GetFirstName())
}

func TestLogoutAndChangePasswordEndSession(t *testing.T) {
	srv := &stubServer{}
	c := newTestClient(t, srv)
	ctx := context.Background()

	_, err := c.Login(ctx, "a@b.c", "secret")
	require.NoError(t, err)
	require.NoError(t, c.Logout(ctx))
	assert.False(t, c.LoggedIn())
	assert.Equal(t, 1, srv.logoutCalls)

	_, err = c.Login(ctx, "a@b.c", "secret")
	require.NoError(t, err)
	require.NoError(t, c.ChangePassword(ctx, "secret", "secret2"))
	assert.False(t, c.LoggedIn())
}

func TestChangePasswordWrongCurrentKeepsSession(t *testing.T) {
	srv := &stubServer{}
	c := newTestClient(t, srv)
	ctx := context.Background()

	_, err := c.Login(ctx, "a@b.c", "secret")
	require.NoError(t, err)

	err = c.ChangePassword(ctx, "not-it", "secret2")
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.NotErrorIs(t, err, ErrUnauthorized)

	// a rejected password is not a stale token: no refresh, no rotation
	assert.Equal(t, 0, srv.refreshCalls)
	require.True(t, c.LoggedIn())
	assert.Equal(t, "a1", c.Session().AccessToken)
	assert.Equal(t, "r1", c.Session().RefreshToken)
}

func TestLogoutForgetsSessionOnServerError(t *testing.T) {
	srv := &stubServer{}
	c := newTestClient(t, srv)
	ctx := context.Background()

	_, err := c.Login(ctx, "a@b.c", "secret")
	require.NoError(t, err)
	srv.revokeAll()

	assert.ErrorIs(t, c.Logout(ctx), ErrUnauthorized)
	assert.False(t, c.LoggedIn())
}

func TestDeleteAccountUnimplemented(t *testing.T) {
	c := newTestClient(t, &stubServer{})
	ctx := context.Background()

	_, err := c.Login(ctx, "a@b.c", "secret")
	require.NoError(t, err)

	err = c.DeleteAccount(ctx)
	assert.Contains(t, err.Error(), "rpc error")
	assert.True(t, c.LoggedIn())
}

func TestMapError(t *testing.T) {
	c := &GRPCClient{}

	tests := []struct {
		in   error
		want error
	}{
		{status.Error(codes.Unauthenticated, "x"), ErrUnauthorized},
		{status.Error(codes.PermissionDenied, "x"), ErrPermissionDenied},
		{status.Error(codes.Unavailable, "x"), ErrUnavailable},
		{status.Error(codes.DeadlineExceeded, "x"), ErrUnavailable},
		{status.Error(codes.AlreadyExists, "x"), ErrAlreadyExists},
		{status.Error(codes.InvalidArgument, "x"), ErrInvalidInput},
		{status.Error(codes.NotFound, "x"), ErrNotFound},
		{ErrNotLoggedIn, ErrNotLoggedIn},
	}
	for _, tt := range tests {
		assert.ErrorIs(t, c.mapError(tt.in), tt.want)
	}

	assert.NoError(t, c.mapError(nil))

	other := errors.New("boom")
	assert.ErrorIs(t, c.mapError(other), other)
}
