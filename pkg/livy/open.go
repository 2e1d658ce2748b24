package livy

import (
	"log/slog"

	"github.com/txn2/fabric-livy/pkg/azure"
	"github.com/txn2/fabric-livy/pkg/credentials"
	"github.com/txn2/fabric-livy/pkg/shortcuts"
)

// Open assembles the full driver stack for a credentials profile: token
// cache, HTTP client, shortcut provisioning, and the session manager.
func Open(creds *credentials.Credentials, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}

	tokens := azure.NewCache(azure.NewProvider(creds), azure.WithCacheLogger(log))
	client := NewClient(creds.LakehouseEndpoint, tokens, WithClientLogger(log))

	opts := []ManagerOption{WithManagerLogger(log)}
	if creds.ShortcutsJSONPath != "" {
		provisioner := shortcuts.NewClient(tokens, creds.WorkspaceID, creds.LakehouseID,
			shortcuts.WithLogger(log))
		opts = append(opts, WithShortcutProvisioner(provisioner))
	}
	return NewManager(client, creds, opts...)
}
