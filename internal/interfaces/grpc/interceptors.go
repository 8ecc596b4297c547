package grpc

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	grpcCodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/turtacn/covenantwatch/internal/domain/service"
	"github.com/turtacn/covenantwatch/pkg/constants"
	"github.com/turtacn/covenantwatch/pkg/errors"
	"github.com/turtacn/covenantwatch/pkg/logger"
)

// InterceptorChain 拦截器链
type InterceptorChain struct {
	log     logger.Logger
	limiter service.RateLimiter
}

// NewInterceptorChain 创建拦截器链。limiter 为 nil 时不限流。
func NewInterceptorChain(log logger.Logger, limiter service.RateLimiter) *InterceptorChain {
	return &InterceptorChain{log: log, limiter: limiter}
}

// UnaryRecoveryInterceptor 恢复拦截器(捕获 panic)
func (ic *InterceptorChain) UnaryRecoveryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				ic.log.Error(ctx, "gRPC handler panic recovered", fmt.Errorf("%v", r),
					logger.String("method", info.FullMethod),
				)
				err = status.Error(grpcCodes.Internal, "internal server error")
			}
		}()
		return handler(ctx, req)
	}
}

// UnaryLoggingInterceptor 日志拦截器，同时把 x-request-id / x-actor 放入 ctx
func (ic *InterceptorChain) UnaryLoggingInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		ctx = withIncomingIdentity(ctx)

		resp, err := handler(ctx, req)

		code := status.Code(err)
		fields := []logger.Field{
			logger.String("method", info.FullMethod),
			logger.Int64("duration_ms", time.Since(start).Milliseconds()),
			logger.String("status", code.String()),
		}
		// 健康探针频率很高，只在 debug 级别记录
		if info.FullMethod == healthCheckMethod {
			ic.log.Debug(ctx, "gRPC request completed", fields...)
		} else {
			ic.log.Info(ctx, "gRPC request completed", fields...)
		}
		return resp, err
	}
}

// UnaryRateLimitInterceptor 限流拦截器，按 actor 或对端地址计数
func (ic *InterceptorChain) UnaryRateLimitInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if ic.limiter == nil || info.FullMethod == healthCheckMethod {
			return handler(ctx, req)
		}

		key := "grpc:global"
		if actor, ok := ctx.Value(constants.ContextKeyActor).(string); ok && actor != "" {
			key = "actor:" + actor
		} else if ip := firstMetadata(ctx, "x-forwarded-for"); ip != "" {
			key = "ip:" + ip
		}

		decision, err := ic.limiter.Allow(ctx, key)
		if err != nil {
			// 限流服务故障时降级放行
			ic.log.Warn(ctx, "rate limit check failed, allowing request",
				logger.String("key", key), logger.String("method", info.FullMethod), logger.Err(err))
			return handler(ctx, req)
		}
		if !decision.Allowed {
			ic.log.Warn(ctx, "rate limit exceeded", logger.String("key", key), logger.String("method", info.FullMethod))
			return nil, status.Errorf(grpcCodes.ResourceExhausted, "rate limit exceeded for %s", key)
		}
		return handler(ctx, req)
	}
}

// UnaryErrorInterceptor 错误转换拦截器(将领域错误转换为 gRPC 状态码)
func (ic *InterceptorChain) UnaryErrorInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		resp, err := handler(ctx, req)
		if err == nil {
			return resp, nil
		}
		return resp, toGRPCError(err)
	}
}

// ChainUnaryInterceptors 链式调用所有拦截器
func (ic *InterceptorChain) ChainUnaryInterceptors() grpc.ServerOption {
	return grpc.ChainUnaryInterceptor(
		ic.UnaryRecoveryInterceptor(),
		ic.UnaryLoggingInterceptor(),
		ic.UnaryRateLimitInterceptor(),
		ic.UnaryErrorInterceptor(),
	)
}

// toGRPCError maps application errors onto gRPC status codes. Errors that
// already carry a status pass through.
func toGRPCError(err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	appErr, ok := errors.AsAppError(err)
	if !ok {
		return status.Error(grpcCodes.Internal, "internal server error")
	}

	switch appErr.HTTPStatus() {
	case 400:
		return status.Error(grpcCodes.InvalidArgument, appErr.Error())
	case 404:
		return status.Error(grpcCodes.NotFound, appErr.Error())
	case 409:
		return status.Error(grpcCodes.AlreadyExists, appErr.Error())
	case 429:
		return status.Error(grpcCodes.ResourceExhausted, appErr.Error())
	case 503:
		return status.Error(grpcCodes.Unavailable, appErr.Error())
	default:
		return status.Error(grpcCodes.Internal, "internal server error")
	}
}

func withIncomingIdentity(ctx context.Context) context.Context {
	if id := firstMetadata(ctx, "x-request-id"); id != "" {
		ctx = context.WithValue(ctx, constants.ContextKeyRequestID, id)
	}
	if actor := firstMetadata(ctx, "x-actor"); actor != "" {
		ctx = context.WithValue(ctx, constants.ContextKeyActor, actor)
	}
	return ctx
}

func firstMetadata(ctx context.Context, key string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if values := md.Get(key); len(values) > 0 {
		return values[0]
	}
	return ""
}
