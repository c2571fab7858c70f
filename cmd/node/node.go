package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"MailNames/internal/account"
	"MailNames/internal/api"
	"MailNames/internal/command"
	"MailNames/internal/dkim"
	"MailNames/internal/feed"
	"MailNames/internal/genesis"
	"MailNames/internal/logger"
	"MailNames/internal/registry"
	"MailNames/internal/resolver"
	"MailNames/internal/snapshot"
	"MailNames/internal/storage"
	"MailNames/internal/zkvm"
)

// Node represents a running MailNames node.
type Node struct {
	cfg      *Config
	doc      *genesis.Document
	storage  *storage.Storage
	pool     *zkvm.Pool
	dkim     *dkim.Registry
	registry *registry.Registry
	resolver *resolver.Resolver
	hub      *feed.Hub
	api      *api.Server
}

// NewNode creates and initializes a new node.
func NewNode(cfg *Config) (*Node, error) {
	n := &Node{cfg: cfg}

	doc, err := genesis.Load(cfg.GenesisPath)
	if err != nil {
		return nil, err
	}
	n.doc = doc

	if err := n.initStorage(); err != nil {
		return nil, err
	}

	if err := n.initTrustAnchors(); err != nil {
		n.Close()
		return nil, err
	}

	if err := n.initFeed(); err != nil {
		n.Close()
		return nil, err
	}

	if err := n.initRegistry(); err != nil {
		n.Close()
		return nil, err
	}

	return n, nil
}

// initStorage initializes the Pebble storage.
func (n *Node) initStorage() error {
	dbPath := n.cfg.DataPath + "/db"

	if err := os.MkdirAll(n.cfg.DataPath, 0755); err != nil {
		return fmt.Errorf("create data directory:\n%w", err)
	}

	db, err := storage.New(dbPath)
	if err != nil {
		return fmt.Errorf("init storage:\n%w", err)
	}

	n.storage = db

	return nil
}

// initTrustAnchors seeds the DKIM registry with the genesis anchors.
// Seeding is idempotent, so a restart re-applies the same records.
func (n *Node) initTrustAnchors() error {
	n.dkim = dkim.New(n.storage, n.doc.Oracles(), n.doc.OracleThreshold)

	for _, pair := range n.doc.AnchorPairs() {
		if err := n.dkim.Seed(pair[0], pair[1]); err != nil {
			return fmt.Errorf("seed dkim anchor:\n%w", err)
		}
	}

	return nil
}

// initFeed starts the QUIC event feed with on-demand snapshots.
func (n *Node) initFeed() error {
	hub, err := feed.NewHub(n.cfg.PrivateKey, n.cfg.FeedAddress, n.snapshotProvider())
	if err != nil {
		return fmt.Errorf("init feed:\n%w", err)
	}

	n.hub = hub

	return nil
}

// initRegistry wires the claim state machine: account factory, command
// verifiers from the genesis bindings, and the resolver on top.
func (n *Node) initRegistry() error {
	factory := account.NewFactory(n.doc.Factory())
	arena := account.NewArena(factory, nil)

	n.registry = registry.New(
		registry.NewStore(n.storage),
		factory,
		arena,
		n.doc.Identity(),
		n.hub,
	)

	if err := n.loadVerifiers(); err != nil {
		return err
	}

	n.resolver = resolver.New(n.registry)

	return nil
}

// loadVerifiers compiles each bound WASM verifier and registers its
// command variant. Module paths resolve relative to the genesis file.
func (n *Node) loadVerifiers() error {
	n.pool = zkvm.New()
	baseDir := filepath.Dir(n.cfg.GenesisPath)

	for _, binding := range n.doc.Verifiers {
		kind, err := genesis.ParseVariant(binding.Variant)
		if err != nil {
			return err
		}

		modulePath := binding.Module
		if !filepath.IsAbs(modulePath) {
			modulePath = filepath.Join(baseDir, modulePath)
		}

		wasmBytes, err := os.ReadFile(modulePath)
		if err != nil {
			return fmt.Errorf("read verifier module %s:\n%w", binding.Module, err)
		}

		moduleID, err := n.pool.Load(wasmBytes)
		if err != nil {
			return fmt.Errorf("load verifier module %s:\n%w", binding.Module, err)
		}

		layout, subject := genesis.LayoutFor(kind)

		n.registry.Register(command.NewVerifier(command.Config{
			Kind:    kind,
			Layout:  layout,
			Subject: subject,
			Backend: zkvm.NewBackend(n.pool, moduleID),
			Keys:    n.dkim,
		}))

		logger.Info("verifier loaded",
			"variant", kind.String(),
			"module", hex.EncodeToString(moduleID[:8]))
	}

	return nil
}

// snapshotProvider exports the compressed claim state on demand.
func (n *Node) snapshotProvider() func() ([]byte, error) {
	return func() ([]byte, error) {
		return snapshot.CreateCompressed(n.storage)
	}
}

// Run starts the node and blocks until shutdown signal.
func (n *Node) Run() error {
	if err := n.hub.Start(); err != nil {
		return fmt.Errorf("start feed:\n%w", err)
	}

	n.api = api.New(
		n.cfg.HTTPAddress,
		n.registry,
		n.registry,
		n.resolver,
		n.snapshotProvider(),
		n.hub,
	)

	if err := n.api.Start(); err != nil {
		return fmt.Errorf("start api:\n%w", err)
	}

	return n.waitForShutdown()
}

// waitForShutdown blocks until SIGINT or SIGTERM is received.
func (n *Node) waitForShutdown() error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", "signal", sig.String())

	return n.Close()
}

// Close shuts down all node components gracefully.
func (n *Node) Close() error {
	if n.api != nil {
		n.api.Stop()
	}

	if n.hub != nil {
		n.hub.Close()
	}

	if n.pool != nil {
		n.pool.Close()
	}

	if n.storage != nil {
		n.storage.Close()
	}

	return nil
}
