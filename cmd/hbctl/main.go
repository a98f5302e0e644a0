// Command hbctl is the Control API's CLI client (spec §6 "CLI client"):
// subcommands mapping one-to-one onto the Control API's JSON-RPC methods.
//
// Grounded on the teacher's cmd/docbuilder kong CLI shape, restructured
// around a small JSON-RPC HTTP client instead of an in-process config
// load.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/alecthomas/kong"
)

var version = "dev"

// CLI is the root kong command definition. Every subcommand shares the
// Control API's connection flags.
type CLI struct {
	URL      string           `help:"Control API base URL" default:"http://127.0.0.1:8080" env:"HENBACKUP_API_URL"`
	Username string           `help:"HTTP Basic auth username" env:"HENBACKUP_API_USERNAME"`
	Password string           `help:"HTTP Basic auth password" env:"HENBACKUP_API_PASSWORD"`
	Version  kong.VersionFlag `name:"version" help:"Show version and exit"`

	ListSnapshots    ListSnapshotsCmd    `cmd:"" name:"list-snapshots" help:"List snapshots across one or all repositories"`
	RestoreSnapshot  RestoreSnapshotCmd  `cmd:"" name:"restore-snapshot" help:"Restore a snapshot to a target path"`
	CheckRepository  CheckRepositoryCmd  `cmd:"" name:"check-repository" help:"Run a consistency check against a repository"`
	Backup           BackupCmd           `cmd:"" name:"backup" help:"Trigger a backup run"`
	Prune            PruneCmd            `cmd:"" name:"prune" help:"Forget and prune old snapshots for a backup"`
	ConfigSummary    ConfigSummaryCmd    `cmd:"" name:"config-summary" help:"Print the daemon's loaded configuration summary"`
	ExplainSnapshot  ExplainSnapshotCmd  `cmd:"" name:"explain-snapshot" help:"List the filesystem entries recorded in a snapshot"`
}

// client is a minimal JSON-RPC 2.0 HTTP client for the Control API.
type client struct {
	url      string
	username string
	password string
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
	ID      int    `json:"id"`
}

type rpcError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result any       `json:"result"`
	Error  *rpcError `json:"error"`
}

func (c *client) call(method string, params any) (any, error) {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", Method: method, Params: params, ID: 1})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.username != "" || c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var decoded rpcResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("%s: unparseable response (status %d): %s", method, resp.StatusCode, string(raw))
	}
	if decoded.Error != nil {
		return nil, fmt.Errorf("%s: [%s] %s", method, decoded.Error.Code, decoded.Error.Message)
	}
	return decoded.Result, nil
}

func (c *CLI) apiClient() *client {
	return &client{url: c.URL, username: c.Username, password: c.Password}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ListSnapshotsCmd maps onto the list_snapshots method.
type ListSnapshotsCmd struct {
	Repository string `help:"Restrict to one repository"`
	Backup     string `help:"Restrict to one backup's repositories"`
	Sort       string `help:"Sort column" default:"Date"`
	Reverse    bool   `help:"Reverse sort order"`
}

func (cmd *ListSnapshotsCmd) Run(root *CLI) error {
	result, err := root.apiClient().call("list_snapshots", map[string]any{
		"repository": cmd.Repository, "backup": cmd.Backup, "sort": cmd.Sort, "reverse": cmd.Reverse,
	})
	if err != nil {
		return err
	}
	return printJSON(result)
}

// RestoreSnapshotCmd maps onto the restore_snapshot method.
type RestoreSnapshotCmd struct {
	Repository string `required:"" help:"Repository holding the snapshot"`
	Snapshot   string `required:"" help:"Snapshot ID to restore"`
	Target     string `help:"Restore target path" default:"/"`
	Priority   string `help:"Task priority (normal|next|immediate)" default:"normal"`
}

func (cmd *RestoreSnapshotCmd) Run(root *CLI) error {
	_, err := root.apiClient().call("restore_snapshot", map[string]any{
		"repository": cmd.Repository, "snapshot": cmd.Snapshot, "target": cmd.Target, "priority": cmd.Priority,
	})
	return err
}

// CheckRepositoryCmd maps onto the check_repository method.
type CheckRepositoryCmd struct {
	Repository string `required:"" help:"Repository to check"`
	Priority   string `help:"Task priority (normal|next|immediate)"`
}

func (cmd *CheckRepositoryCmd) Run(root *CLI) error {
	_, err := root.apiClient().call("check_repository", map[string]any{
		"repository": cmd.Repository, "priority": cmd.Priority,
	})
	return err
}

// BackupCmd maps onto the backup method.
type BackupCmd struct {
	Backup     string `required:"" help:"Backup name to run"`
	Priority   string `help:"Task priority (normal|next|immediate)" default:"normal"`
	WaitResult bool   `name:"wait" help:"Block until the backup completes"`
}

func (cmd *BackupCmd) Run(root *CLI) error {
	result, err := root.apiClient().call("backup", map[string]any{
		"backup": cmd.Backup, "priority": cmd.Priority, "waitResult": cmd.WaitResult,
	})
	if err != nil {
		return err
	}
	if cmd.WaitResult {
		return printJSON(result)
	}
	return nil
}

// PruneCmd maps onto the prune method.
type PruneCmd struct {
	Backup     string `required:"" help:"Backup whose retention policy to apply"`
	Priority   string `help:"Task priority (normal|next|immediate)" default:"normal"`
	WaitResult bool   `name:"wait" help:"Block until the prune completes"`
}

func (cmd *PruneCmd) Run(root *CLI) error {
	result, err := root.apiClient().call("prune", map[string]any{
		"backup": cmd.Backup, "priority": cmd.Priority, "waitResult": cmd.WaitResult,
	})
	if err != nil {
		return err
	}
	if cmd.WaitResult {
		return printJSON(result)
	}
	return nil
}

// ConfigSummaryCmd maps onto the get_config_summary method.
type ConfigSummaryCmd struct{}

func (cmd *ConfigSummaryCmd) Run(root *CLI) error {
	result, err := root.apiClient().call("get_config_summary", nil)
	if err != nil {
		return err
	}
	return printJSON(result)
}

// ExplainSnapshotCmd maps onto the explain_snapshot method.
type ExplainSnapshotCmd struct {
	Repository string `required:"" help:"Repository holding the snapshot"`
	Snapshot   string `required:"" help:"Snapshot ID to explain"`
}

func (cmd *ExplainSnapshotCmd) Run(root *CLI) error {
	result, err := root.apiClient().call("explain_snapshot", map[string]any{
		"repository": cmd.Repository, "snapshot": cmd.Snapshot,
	})
	if err != nil {
		return err
	}
	return printJSON(result)
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Description("hbctl: control client for the henbackupd Control API."),
		kong.Vars{"version": version},
	)
	ctx.FatalIfErrorf(ctx.Run(&cli))
}
