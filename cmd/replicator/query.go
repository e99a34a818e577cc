package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/OCAP2/replicator/internal/config"
	"github.com/OCAP2/replicator/internal/storage"
	"github.com/OCAP2/replicator/pkg/core"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	Owner       string
	UserDataKey string
}

// StoredObject is one query hit.
type StoredObject struct {
	ID         uuid.UUID  `json:"id"`
	Type       string     `json:"type"`
	Name       string     `json:"name,omitempty"`
	Owner      uuid.UUID  `json:"owner"`
	Priority   uint8      `json:"priority"`
	Position   [3]float32 `json:"position"`
	UserData   string     `json:"userData,omitempty"`
	LastEdited uint64     `json:"lastEdited"`
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Look up persisted objects",
		Long: `List the objects in the configured storage that are simulated by a given
owner or whose user data carries a given top level key. Exactly one of
--owner and --user-data-key must be set.

Examples:
  replicator query --owner 5b0e7a0c-6c9e-4d8f-9a43-0d8a1f4f7d21
  replicator query --user-data-key grabbable --format json`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Owner, "owner", "", "simulation owner id")
	cmd.Flags().StringVar(&opts.UserDataKey, "user-data-key", "", "top level user data key")
	cmd.MarkFlagsMutuallyExclusive("owner", "user-data-key")
	cmd.MarkFlagsOneRequired("owner", "user-data-key")

	return cmd
}

func runQuery(opts *QueryOptions, cmd *cobra.Command) error {
	var owner uuid.UUID
	if opts.Owner != "" {
		var err error
		if owner, err = uuid.Parse(opts.Owner); err != nil {
			return fmt.Errorf("invalid owner %q: %w", opts.Owner, err)
		}
	}

	a, err := newApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	q, ok := a.backend.(storage.Querier)
	if !ok {
		return fmt.Errorf("storage type %s does not support queries", config.GetStorageConfig().Type)
	}

	var found []core.ObjectSnapshot
	if opts.Owner != "" {
		found, err = q.FindByOwner(owner)
	} else {
		found, err = q.FindByUserDataKey(opts.UserDataKey)
	}
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	objects := make([]StoredObject, 0, len(found))
	for _, s := range found {
		objects = append(objects, StoredObject{
			ID:         s.ID,
			Type:       s.Type.String(),
			Name:       s.Name,
			Owner:      s.Owner,
			Priority:   s.Priority,
			Position:   s.Position,
			UserData:   s.UserData,
			LastEdited: s.LastEdited,
		})
	}

	out := cmd.OutOrStdout()
	if opts.Format == "json" {
		return writeJSON(out, objects)
	}
	for _, o := range objects {
		fmt.Fprintf(out, "%s  %-6s %-16q owner=%s/%d pos=%v\n", o.ID, o.Type, o.Name, o.Owner, o.Priority, o.Position)
	}
	fmt.Fprintf(out, "%d objects\n", len(objects))
	return nil
}
