// Command navbake bakes a Wavefront OBJ mesh into a navigation blob.
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/lnkwrm/navbake"
	"github.com/lnkwrm/navbake/geom"
	"github.com/lnkwrm/navbake/voxel"
)

var cli struct {
	Input   string `arg:"" help:"Wavefront OBJ file to bake." type:"existingfile"`
	Output  string `short:"o" help:"Write the baked navigation blob here." type:"path"`
	LogFile string `help:"Mirror logs into this file with rotation." type:"path"`
	Verbose bool   `short:"v" help:"Enable debug logging."`

	CellSize   float32 `help:"Voxel size on the ground plane, world units." default:"0.3"`
	CellHeight float32 `help:"Voxel height, world units." default:"0.2"`

	AgentHeight float32 `help:"Agent height, world units." default:"2.0"`
	AgentRadius float32 `help:"Agent radius, world units." default:"0.6"`
	AgentClimb  float32 `help:"Maximum step the agent can climb, world units." default:"0.9"`
	AgentSlope  float32 `help:"Maximum walkable slope, degrees." default:"45"`

	Partition string `help:"Region partitioning: watershed, monotone or layer." enum:"watershed,monotone,layer" default:"watershed"`

	EdgeMaxLen      float32 `help:"Maximum contour edge length, world units." default:"12"`
	EdgeMaxError    float32 `help:"Maximum contour simplification error, voxels." default:"1.3"`
	RegionMinSize   float32 `help:"Minimum region dimension, voxels." default:"8"`
	RegionMergeSize float32 `help:"Regions smaller than this get merged, voxels." default:"20"`
	VertsPerPoly    int     `help:"Maximum vertices per polygon." default:"6"`
	DetailDist      float32 `help:"Detail sampling distance, in cell sizes." default:"6"`
	DetailMaxError  float32 `help:"Maximum detail surface deviation, in cell heights." default:"1"`
}

func newLogger() *zap.Logger {
	level := zapcore.InfoLevel
	if cli.Verbose {
		level = zapcore.DebugLevel
	}
	encCfg := zap.NewDevelopmentEncoderConfig()
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stderr), level),
	}
	if cli.LogFile != "" {
		sink := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cli.LogFile,
			MaxSize:    10, // MB
			MaxBackups: 3,
		})
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), sink, level))
	}
	return zap.New(zapcore.NewTee(cores...))
}

func buildOptions() navbake.BakeOptions {
	opts := navbake.DefaultBakeOptions()
	opts.CellSize = cli.CellSize
	opts.CellHeight = cli.CellHeight
	opts.Agent = voxel.AgentProfile{
		Height:   cli.AgentHeight,
		Radius:   cli.AgentRadius,
		MaxClimb: cli.AgentClimb,
		MaxSlope: cli.AgentSlope,
	}
	opts.MaxEdgeLen = cli.EdgeMaxLen
	opts.MaxSimplificationError = cli.EdgeMaxError
	opts.RegionMinSize = cli.RegionMinSize
	opts.RegionMergeSize = cli.RegionMergeSize
	opts.MaxVertsPerPoly = cli.VertsPerPoly
	opts.DetailSampleDist = cli.DetailDist
	opts.DetailSampleMaxError = cli.DetailMaxError
	switch cli.Partition {
	case "monotone":
		opts.Partition = voxel.PartitionMonotone
	case "layer":
		opts.Partition = voxel.PartitionLayer
	default:
		opts.Partition = voxel.PartitionWatershed
	}
	return opts
}

func run(logger *zap.Logger) error {
	mesh, err := geom.LoadOBJ(cli.Input)
	if err != nil {
		return err
	}
	logger.Info("loaded geometry",
		zap.String("file", cli.Input),
		zap.Int("verts", mesh.VertCount()),
		zap.Int("tris", mesh.TriCount()))

	res := navbake.Bake(mesh, buildOptions(), logger)
	switch res.Outcome {
	case navbake.Failed:
		return res.Err
	case navbake.Skipped:
		logger.Warn("bake skipped", zap.Error(res.Err))
		return nil
	}
	defer res.Component.Close()

	fmt.Printf("grid:     %d x %d cells\n", res.Stats.GridWidth, res.Stats.GridHeight)
	fmt.Printf("spans:    %d walkable\n", res.Stats.SpanCount)
	fmt.Printf("regions:  %d\n", res.Stats.RegionCount)
	fmt.Printf("contours: %d\n", res.Stats.ContourCount)
	fmt.Printf("polymesh: %d polys, %d verts\n", res.Stats.PolyCount, res.Stats.VertCount)
	fmt.Printf("detail:   %d verts, %d tris\n", res.Stats.DetailVerts, res.Stats.DetailTris)
	fmt.Printf("took:     %s\n", res.Stats.Duration)

	if cli.Output != "" {
		blob, err := res.Component.Data.Marshal()
		if err != nil {
			return err
		}
		if err := os.WriteFile(cli.Output, blob, 0o644); err != nil {
			return err
		}
		logger.Info("wrote navigation blob",
			zap.String("file", cli.Output),
			zap.Int("bytes", len(blob)))
	}
	return nil
}

func main() {
	ctx := kong.Parse(&cli,
		kong.Name("navbake"),
		kong.Description("Bake triangle geometry into a navigation mesh."))
	logger := newLogger()
	defer logger.Sync()

	if err := run(logger); err != nil {
		logger.Error("bake failed", zap.Error(err))
		ctx.Exit(1)
	}
}
