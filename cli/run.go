package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/flowgraph/graphengine/execsvc"
	"github.com/flowgraph/graphengine/runconfig"
	"github.com/flowgraph/graphengine/store"
)

// Additional exit codes, continuing the numbering in validate.go.
const exitRuntime = 2

// runConfigFile is the on-disk shape of a run config: the same fields
// process_graph accepts over HTTP, resolved against the graph file's own
// node schemas rather than a persisted graph's.
type runConfigFile struct {
	RootInputs     map[string]map[string]any `json:"root_inputs"`
	DisableList    []string                  `json:"disable_list"`
	DataOverwrites map[string]map[string]any `json:"data_overwrites"`
}

// NewRunCmd creates the "run" subcommand.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <graph.json> <run-config.json>",
		Short: "Execute a graph file against a run config and print the result as JSON",
		Args:  cobra.ExactArgs(2),
		RunE:  runRun,
	}
	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	graphPath, cfgPath := args[0], args[1]

	g, err := loadGraphFile(graphPath)
	if err != nil {
		return exitError(exitFileNotFound, "%v", err)
	}

	// #nosec G304 -- path is a command-line argument the operator supplied.
	cfgData, err := os.ReadFile(cfgPath)
	if err != nil {
		return exitError(exitFileNotFound, "reading run config: %v", err)
	}
	var rcf runConfigFile
	if err := json.Unmarshal(cfgData, &rcf); err != nil {
		return exitError(exitRuntime, "parsing run config: %v", err)
	}

	rootInputs, err := typeRawValueMap(g, rcf.RootInputs)
	if err != nil {
		return exitError(exitRuntime, "root_inputs: %v", err)
	}
	overwrites, err := typeRawValueMap(g, rcf.DataOverwrites)
	if err != nil {
		return exitError(exitRuntime, "data_overwrites: %v", err)
	}
	cfg := runconfig.Config{
		RootInputs:     rootInputs,
		DisableList:    rcf.DisableList,
		DataOverwrites: overwrites,
	}

	repo := store.NewMemoryRepository()
	for _, n := range g.Nodes {
		if err := repo.CreateNode(cmd.Context(), n); err != nil {
			return exitError(exitRuntime, "seeding node %q: %v", n.ID, err)
		}
	}
	for _, e := range g.Edges {
		if err := repo.CreateEdge(cmd.Context(), e); err != nil {
			return exitError(exitRuntime, "seeding edge %q: %v", e.ID, err)
		}
	}
	nodeIDs := make([]string, 0, len(g.Nodes))
	for id := range g.Nodes {
		nodeIDs = append(nodeIDs, id)
	}
	if err := repo.CreateGraph(cmd.Context(), g.ID, nodeIDs); err != nil {
		return exitError(exitRuntime, "seeding graph %q: %v", g.ID, err)
	}

	svc := execsvc.New(repo)
	result, err := svc.Execute(cmd.Context(), g.ID, cfg)
	if err != nil {
		return exitError(exitRuntime, "execution failed: %v", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(runResultView(result)); err != nil {
		return exitError(exitRuntime, "encoding result: %v", err)
	}

	if result.Sentinel != "" {
		return exitError(exitValidation, "execution stopped: %s", result.Sentinel)
	}
	return nil
}

type runResult struct {
	Result string                    `json:"result,omitempty"`
	States map[string]runNodeStateView `json:"states,omitempty"`
}

type runNodeStateView struct {
	Level   int            `json:"level"`
	Visited bool           `json:"visited"`
	DataIn  map[string]any `json:"data_in"`
	DataOut map[string]any `json:"data_out"`
}

func runResultView(result execsvc.Result) runResult {
	if result.Sentinel != "" {
		return runResult{Result: result.Sentinel}
	}
	states := make(map[string]runNodeStateView, len(result.States))
	for id, s := range result.States {
		states[id] = runNodeStateView{
			Level:   s.Level,
			Visited: s.Visited,
			DataIn:  valueMapToJSON(s.DataIn),
			DataOut: valueMapToJSON(s.DataOut),
		}
	}
	return runResult{States: states}
}
