// Package analysis runs the policy pipeline of a serverless application. [Analyze] builds the application
// dependency graph from the application template and the static analyzer's results, and writes the policy
// specification the developer edits. [Enforce] resolves the edited policies against the graph and instruments the
// code of the functions with the runtime checks of the policies that could not be decided statically.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/awslabs/adg-policy/analysis/adg"
	"github.com/awslabs/adg-policy/analysis/assembler"
	"github.com/awslabs/adg-policy/analysis/codetree"
	"github.com/awslabs/adg-policy/analysis/config"
	"github.com/awslabs/adg-policy/analysis/instrument"
	"github.com/awslabs/adg-policy/analysis/policy"
	"github.com/awslabs/adg-policy/analysis/props"
	"github.com/awslabs/adg-policy/analysis/resolver"
	"github.com/awslabs/adg-policy/analysis/sarif"
	"github.com/awslabs/adg-policy/analysis/template"
	"github.com/awslabs/adg-policy/internal/formatutil"
)

// Version is the version of the tool
const Version = "v0.3.0"

// BuildGraph builds the application dependency graph of the application configured by cfg:
//   - the functions and resources are read from the template
//   - the flows reported by the analyzer are added per function
//   - global nodes are mapped to the declared resources they name
//   - the dependencies between resources add the inter-function edges
//   - the ancestors of every node are computed
func BuildGraph(ctx context.Context, cfg *config.Config, logger *config.LogGroup) (*adg.Graph, error) {
	t, err := template.Load(cfg, logger)
	if err != nil {
		return nil, err
	}
	g := adg.NewGraph(cfg.AppName)
	g.Functions = t.Functions
	g.Resources = t.Resources

	var dataflows *sarif.Log
	if cfg.DataflowResults != "" {
		if dataflows, err = sarif.Load(cfg.DataflowResults); err != nil {
			return nil, err
		}
	} else {
		logger.Warnf("No dataflow results configured, the graph has no intra-function flows")
	}
	var metadata *sarif.Log
	if cfg.MetadataResults != "" {
		if metadata, err = sarif.Load(cfg.MetadataResults); err != nil {
			return nil, err
		}
	}

	asm := assembler.New(g, cfg, logger)
	if err := asm.GenerateIntraFunctionGraphs(ctx, g.Functions, dataflows); err != nil {
		return nil, fmt.Errorf("could not build function graphs: %w", err)
	}
	if err := asm.AddMetadataEdges(ctx, g.Functions, metadata); err != nil {
		return nil, fmt.Errorf("could not add metadata edges: %w", err)
	}
	asm.ResolveStaticReferences(g.Resources)
	if err := asm.AddInterFunctionEdges(g.Resources); err != nil {
		return nil, fmt.Errorf("could not add inter-function edges: %w", err)
	}
	if residual := g.PopulateAncestors(logger); residual > 0 {
		logger.Warnf("%d node(s) are on cycles, their ancestor sets are partial", residual)
	}
	logger.Infof("Built graph of %s: %d node(s), %d edge(s), %d metadata edge(s)", g.Name, len(g.Nodes()),
		len(g.Edges()), len(g.MetadataEdges()))
	return g, nil
}

// Analyze builds the graph of the application and writes the policy specification of its governed edges, with
// every policy set to allow, and the DOT rendering of the graph to the output directory. An existing specification
// is replaced.
func Analyze(ctx context.Context, cfg *config.Config, logger *config.LogGroup) (*adg.Graph, error) {
	g, err := BuildGraph(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	spec := policy.BuildSpec(g)
	if _, err := os.Stat(cfg.PolicySpecPath); err == nil {
		logger.Warnf("Replacing the policy specification %s", cfg.PolicySpecPath)
	}
	if err := spec.Write(cfg.PolicySpecPath); err != nil {
		return nil, err
	}
	logger.Infof("Wrote %d policy record(s) to %s", len(spec), formatutil.Bold(cfg.PolicySpecPath))
	if err := writeDOT(g, cfg.GraphPath()); err != nil {
		return nil, err
	}
	logger.Infof("Wrote graph to %s", cfg.GraphPath())
	return g, nil
}

// Render builds the graph of the application and writes its DOT rendering to w
func Render(ctx context.Context, cfg *config.Config, logger *config.LogGroup, w io.Writer) error {
	g, err := BuildGraph(ctx, cfg, logger)
	if err != nil {
		return err
	}
	return g.WriteDOT(w)
}

func writeDOT(g *adg.Graph, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("could not create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("could not create graph file: %w", err)
	}
	if err := g.WriteDOT(f); err != nil {
		f.Close()
		return fmt.Errorf("could not render graph: %w", err)
	}
	return f.Close()
}

// An Enforcement is the result of enforcing the policy specification of an application
type Enforcement struct {
	Graph    *adg.Graph
	Verdicts []resolver.Verdict
	Plan     *instrument.Plan
	// Written lists the instrumented files
	Written []string
}

// Enforce rebuilds the graph of the application, attaches the policies of the specification and resolves them.
// The instrumentation plan of the runtime assertions is written to the output directory, together with the
// instrumented copy of the code of the functions.
// Policies that are statically false are returned as errors wrapping resolver.ErrStaticPolicyFailure, after the
// rest of the enforcement has completed. Unsupported policies stop the enforcement.
func Enforce(ctx context.Context, cfg *config.Config, logger *config.LogGroup) (*Enforcement, error) {
	g, err := BuildGraph(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	spec, err := policy.LoadSpec(cfg.PolicySpecPath)
	if err != nil {
		return nil, err
	}
	if err := spec.Attach(g); err != nil {
		return nil, fmt.Errorf("policy specification %s does not match the application: %w", cfg.PolicySpecPath,
			err)
	}

	lookup, closeLookup, err := propertyLookup(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer closeLookup()

	verdicts, err := resolver.New(cfg, logger, lookup).ResolveGraph(ctx, g)
	if err != nil && !onlyStaticFailures(err) {
		return nil, err
	}
	failures := err

	root := cfg.AppRoot()
	planner := instrument.NewPlanner(g, treeLoader(ctx, root), logger)
	plan, err := planner.Plan(verdicts)
	if err != nil {
		return nil, err
	}
	if err := plan.Write(cfg.PlanPath()); err != nil {
		return nil, err
	}
	written, err := instrument.WriteInstrumented(plan, root, cfg.InstrumentedDir(), codeDirs(g, logger))
	if err != nil {
		return nil, err
	}
	logger.Infof("Wrote %d instrumented file(s) to %s", len(written), formatutil.Bold(cfg.InstrumentedDir()))
	return &Enforcement{Graph: g, Verdicts: verdicts, Plan: plan, Written: written}, failures
}

// propertyLookup returns the lookup of resource properties configured by cfg and the function releasing it
func propertyLookup(ctx context.Context, cfg *config.Config, logger *config.LogGroup) (policy.PropertyLookup,
	func(), error) {
	chain := props.Chain{props.TemplateLookup{}}
	closeLookup := func() {}
	if cfg.GCSLookups {
		gcs, err := props.NewGCSLookup(ctx, cfg.GCSCredentials, logger)
		if err != nil {
			return nil, nil, err
		}
		chain = append(chain, gcs)
		closeLookup = func() {
			if err := gcs.Close(); err != nil {
				logger.Warnf("Could not close storage client: %v", err)
			}
		}
	}
	if cfg.AWSLookups {
		aws, err := props.NewAWSLookup(ctx, cfg.AWSProfile, cfg.AWSRegion, logger)
		if err != nil {
			closeLookup()
			return nil, nil, err
		}
		chain = append(chain, aws)
	}
	return props.NewCached(chain), closeLookup, nil
}

// onlyStaticFailures returns true if every error joined in err is a static policy failure
func onlyStaticFailures(err error) bool {
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		return errors.Is(err, resolver.ErrStaticPolicyFailure)
	}
	for _, e := range joined.Unwrap() {
		if !onlyStaticFailures(e) {
			return false
		}
	}
	return true
}

// treeLoader parses files relative to root
func treeLoader(ctx context.Context, root string) instrument.TreeLoader {
	return func(fn *adg.Function, file string) (adg.CodeTree, error) {
		return codetree.Load(ctx, root, fn, file)
	}
}

// codeDirs returns the code directories of the functions of g. A function whose code is the application root is
// not copied: only its instrumented files are written.
func codeDirs(g *adg.Graph, logger *config.LogGroup) []string {
	var dirs []string
	seen := map[string]bool{}
	for _, fn := range g.Functions {
		if fn.Path == "." || fn.Path == "" {
			logger.Debugf("Code of %s is the application root, only instrumented files are written", fn.Name)
			continue
		}
		if !seen[fn.Path] {
			seen[fn.Path] = true
			dirs = append(dirs, fn.Path)
		}
	}
	return dirs
}
