package main

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"proposal-prepper/internal/shared/config"
)

func mockConfig(port string) config.Config {
	cfg := config.Defaults()
	cfg.Mode = config.ModeMock
	cfg.DatabaseURL = ""
	cfg.Port = port
	cfg.Analysis.MockStepInterval = 0
	return cfg
}

func TestRunReturnsListenErrorInsteadOfExiting(t *testing.T) {
	gin.SetMode(gin.TestMode)
	busy, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer busy.Close()
	port := strconv.Itoa(busy.Addr().(*net.TCPAddr).Port)

	if err := run(context.Background(), mockConfig(port)); err == nil {
		t.Fatalf("expected an error for a port already in use")
	}
}

func TestRunStopsCleanlyOnCancel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, mockConfig("0")) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not return after cancel")
	}
}
