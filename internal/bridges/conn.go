package bridges

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/yungbote/knowledge-indexer/internal/platform/envutil"
)

const (
	HeaderServiceKey     = "x-internal-service-key"
	HeaderProjectID      = "x-project-id"
	HeaderOrganizationID = "x-organization-id"
)

type Config struct {
	IntegrationHost string
	WebHost         string
	ServiceKey      string
	Timeout         time.Duration
}

func ConfigFromEnv() Config {
	return Config{
		IntegrationHost: envutil.String("INTEGRATION_HOST", "localhost:9004"),
		WebHost:         envutil.String("WEB_HOST", "localhost:9001"),
		ServiceKey:      envutil.String("INTERNAL_SERVICE_KEY", ""),
		Timeout:         envutil.Duration("BRIDGE_TIMEOUT", 60*time.Second),
	}
}

// Auth scopes a bridge call to a tenant.
type Auth struct {
	ProjectID      uint64
	OrganizationID uint64
}

// Dial opens a lazily connecting client; no I/O happens until the first call.
func Dial(target string) (*grpc.ClientConn, error) {
	if strings.TrimSpace(target) == "" {
		return nil, fmt.Errorf("bridge target is empty")
	}
	return grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
}

func outgoing(ctx context.Context, serviceKey string, auth Auth) context.Context {
	return metadata.AppendToOutgoingContext(ctx,
		HeaderServiceKey, serviceKey,
		HeaderProjectID, strconv.FormatUint(auth.ProjectID, 10),
		HeaderOrganizationID, strconv.FormatUint(auth.OrganizationID, 10),
	)
}

// invoke performs a unary call whose request and response are both
// structpb.Struct messages.
func invoke(ctx context.Context, conn grpc.ClientConnInterface, timeout time.Duration, method string, req map[string]any) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	out := &structpb.Struct{}
	if err := conn.Invoke(ctx, method, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

// envelope reads the success/code/error fields shared by every response.
func envelope(out *structpb.Struct) (ok bool, code int, message string) {
	f := out.GetFields()
	ok = f["success"].GetBoolValue()
	code = int(f["code"].GetNumberValue())
	if e := f["error"].GetStructValue(); e != nil {
		message = e.GetFields()["errorMessage"].GetStringValue()
		if message == "" {
			message = e.GetFields()["humanMessage"].GetStringValue()
		}
	}
	return ok, code, message
}
