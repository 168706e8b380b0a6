package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"

	"github.com/gdamore/tcell/v2"
	"go.uber.org/zap"

	"github.com/danghamo/isoboard/internal/app/command"
	"github.com/danghamo/isoboard/internal/app/handler"
	"github.com/danghamo/isoboard/internal/app/service"
	"github.com/danghamo/isoboard/internal/domain/board"
	"github.com/danghamo/isoboard/internal/domain/shared"
	"github.com/danghamo/isoboard/pkg/config"
	"github.com/danghamo/isoboard/pkg/logger"
)

var seedTypes = []struct {
	name  string
	color string
}{
	{"tree", "green"},
	{"rock", "gray"},
	{"water", "blue"},
	{"house", "yellow"},
}

func main() {
	logFile := flag.String("log", "boardview.log", "log file (rotated)")
	tiles := flag.Int("tiles", 40, "random tiles to seed")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// The terminal is the screen; logs must not touch it
	logCfg := cfg.Log.LoggerConfig()
	logCfg.File = *logFile
	log, err := logger.New(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = log.Sync()
	}()

	// One terminal cell per projected pixel: a 4x2 diamond reads well
	cfg.Projection.CellWidth = 4
	cfg.Projection.CellHeight = 2

	svc, err := service.NewBoardService(cfg, nil, log)
	if err != nil {
		log.Fatal("Failed to create board", zap.Error(err))
	}
	defer svc.Close()

	if err := seed(context.Background(), handler.NewBoardCommandHandler(svc, log), svc, *tiles); err != nil {
		log.Fatal("Failed to seed board", zap.Error(err))
	}

	screen, err := tcell.NewScreen()
	if err != nil {
		log.Fatal("Failed to create screen", zap.Error(err))
	}
	if err := screen.Init(); err != nil {
		log.Fatal("Failed to initialize screen", zap.Error(err))
	}
	screen.EnableMouse()
	defer screen.Fini()

	NewViewer(screen, svc, log).Run()
}

// seed places n random tiles; refused placements are skipped
func seed(ctx context.Context, h *handler.BoardCommandHandler, svc *service.BoardService, n int) error {
	w, ht := svc.Size()
	cmds := make([]command.Command, 0, n)
	for i := 0; i < n; i++ {
		kind := seedTypes[rand.Intn(len(seedTypes))]
		cell := shared.NewCell(rand.Intn(w), rand.Intn(ht))
		cmds = append(cmds, command.NewPlaceTileCommand(board.NewTile(kind.name, kind.color), cell))
	}
	_, err := h.HandleAll(ctx, cmds)
	return err
}
