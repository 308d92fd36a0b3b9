package bridges

import (
	"context"
	"strconv"
	"time"

	"google.golang.org/grpc"

	"github.com/yungbote/knowledge-indexer/internal/platform/logger"
)

const vaultGetCredentialMethod = "/web_api.VaultService/GetCredential"

// VaultCredential is a stored provider credential. Value is the opaque
// provider-specific blob (api keys, endpoints).
type VaultCredential struct {
	ID    uint64
	Name  string
	Value map[string]any
}

type VaultBridge struct {
	log        *logger.Logger
	conn       grpc.ClientConnInterface
	serviceKey string
	timeout    time.Duration
}

func NewVaultBridge(conn grpc.ClientConnInterface, cfg Config, log *logger.Logger) *VaultBridge {
	return &VaultBridge{
		log:        log.With("bridge", BridgeVault),
		conn:       conn,
		serviceKey: cfg.ServiceKey,
		timeout:    cfg.Timeout,
	}
}

func (b *VaultBridge) GetCredential(ctx context.Context, auth Auth, credentialID uint64) (*VaultCredential, error) {
	req := map[string]any{"vaultId": strconv.FormatUint(credentialID, 10)}
	out, err := invoke(outgoing(ctx, b.serviceKey, auth), b.conn, b.timeout, vaultGetCredentialMethod, req)
	if err != nil {
		return nil, &BridgeError{Bridge: BridgeVault, Message: "get credential failed", Cause: err}
	}
	ok, code, msg := envelope(out)
	if !ok {
		if msg == "" {
			msg = "credential lookup was not successful"
		}
		return nil, &BridgeError{Bridge: BridgeVault, Code: code, Message: msg}
	}
	data := out.GetFields()["data"].GetStructValue()
	f := data.GetFields()
	cred := &VaultCredential{
		ID:   credentialID,
		Name: f["name"].GetStringValue(),
	}
	if raw := f["id"].GetStringValue(); raw != "" {
		if id, err := strconv.ParseUint(raw, 10, 64); err == nil {
			cred.ID = id
		}
	}
	if v := f["value"].GetStructValue(); v != nil {
		cred.Value = v.AsMap()
	}
	b.log.Debug("credential fetched", "credential_id", cred.ID, "has_value", len(cred.Value) > 0)
	return cred, nil
}
