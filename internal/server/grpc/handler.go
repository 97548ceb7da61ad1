package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/gophauth/internal/common"
	pb "github.com/dmitrijs2005/gophauth/internal/proto"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/services"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
)

func (s *GRPCServer) Ping(ctx context.Context, _ *emptypb.Empty) (*pb.PingResponse, error) {

	return &pb.PingResponse{Status: "OK"}, nil

}

func (s *GRPCServer) Register(ctx context.Context, req *pb.RegisterRequest) (*pb.AuthResponse, error) {

	res, err := s.users.Register(ctx, services.RegisterInput{
		FirstName: req.GetFirstName(),
		LastName:  req.GetLastName(),
		Email:     req.GetEmail(),
		Password:  req.GetPassword(),
	})
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	return toAuthResponse(res), nil

}

func (s *GRPCServer) Login(ctx context.Context, req *pb.LoginRequest) (*pb.AuthResponse, error) {

	res, err := s.users.Login(ctx, req.GetEmail(), req.GetPassword())
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	return toAuthResponse(res), nil

}

func (s *GRPCServer) Refresh(ctx context.Context, req *pb.RefreshRequest) (*pb.AuthResponse, error) {

	res, err := s.users.Refresh(ctx, req.GetRefreshToken())
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	return toAuthResponse(res), nil

}

func (s *GRPCServer) Me(ctx context.Context, _ *emptypb.Empty) (*pb.User, error) {
	id, err := identityFrom(ctx)
	if err != nil {
		return nil, err
	}

	u, err := s.users.Me(ctx, id.UserID)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return toUser(*u), nil
}

func (s *GRPCServer) UpdateProfile(ctx context.Context, req *pb.UpdateProfileRequest) (*pb.User, error) {
	id, err := identityFrom(ctx)
	if err != nil {
		return nil, err
	}

	u, err := s.users.UpdateProfile(ctx, id.UserID, req.GetFirstName(), req.GetLastName())
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return toUser(*u), nil
}

func (s *GRPCServer) Logout(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	id, err := identityFrom(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.users.Logout(ctx, id.UserID); err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &emptypb.Empty{}, nil
}

func (s *GRPCServer) ChangePassword(ctx context.Context, req *pb.ChangePasswordRequest) (*emptypb.Empty, error) {
	id, err := identityFrom(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.users.ChangePassword(ctx, id.UserID, req.GetCurrentPassword(), req.GetNewPassword()); err != nil {
		// the bearer is fine here; Unauthenticated would make clients refresh it
		if errors.Is(err, common.ErrInvalidCredentials) {
			return nil, status.Error(codes.PermissionDenied, "invalid current password")
		}
		return nil, s.toStatus(ctx, err)
	}
	return &emptypb.Empty{}, nil
}

func (s *GRPCServer) DeleteAccount(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	id, err := identityFrom(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.users.DeleteAccount(ctx, id.UserID); err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &emptypb.Empty{}, nil
}

func toAuthResponse(res *services.AuthResult) *pb.AuthResponse {
	return &pb.AuthResponse{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		TokenType:    res.TokenType,
		ExpiresIn:    res.ExpiresIn,
		User:         toUser(res.User),
	}
}

func toUser(u models.PublicUser) *pb.User {
	return &pb.User{Id: u.ID, Email: u.Email, FirstName: u.FirstName, LastName: u.LastName}
}
