package sif_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/usrnet/inetd/sif"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	root := sif.New()
	addrs := root.AppendChild("addresses")
	a := addrs.AppendChild("address")
	a.SetAttr("id", "1")
	a.SetAttr("naddr", "192.0.2.1/24")
	a.SetAttr("link", "net/loopback")
	a.SetAttr("name", "v4a")

	routes := root.AppendChild("static-routes")
	r := routes.AppendChild("route")
	r.SetAttr("id", "1")
	r.SetAttr("dest", "0.0.0.0/0")
	r.SetAttr("router", "192.0.2.254")
	r.SetAttr("name", "default")

	path := filepath.Join(t.TempDir(), "cfg.sif")
	if err := sif.Save(root, path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := sif.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	sections := loaded.Children()
	if len(sections) != 2 {
		t.Fatalf("loaded %d sections, want 2", len(sections))
	}
	if sections[0].Type() != "addresses" || sections[1].Type() != "static-routes" {
		t.Fatalf("section types = %q, %q", sections[0].Type(), sections[1].Type())
	}

	la := sections[0].Children()
	if len(la) != 1 || la[0].Type() != "address" {
		t.Fatalf("addresses children = %+v", la)
	}
	for _, kv := range [][2]string{
		{"id", "1"}, {"naddr", "192.0.2.1/24"}, {"link", "net/loopback"}, {"name", "v4a"},
	} {
		if got, ok := la[0].Attr(kv[0]); !ok || got != kv[1] {
			t.Errorf("address attr %q = %q, %v; want %q", kv[0], got, ok, kv[1])
		}
	}

	lr := sections[1].Children()
	if len(lr) != 1 || lr[0].Type() != "route" {
		t.Fatalf("static-routes children = %+v", lr)
	}
	if got, _ := lr[0].Attr("router"); got != "192.0.2.254" {
		t.Errorf("route router = %q", got)
	}
}

func TestSetAttrReplaces(t *testing.T) {
	n := sif.New()
	n.SetAttr("k", "1")
	n.SetAttr("k", "2")
	if got, _ := n.Attr("k"); got != "2" {
		t.Errorf("Attr after replace = %q, want 2", got)
	}
	if _, ok := n.Attr("missing"); ok {
		t.Error("Attr reported a missing attribute as present")
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := sif.Load(filepath.Join(t.TempDir(), "nope.sif"))
	if !os.IsNotExist(err) {
		t.Errorf("Load missing file: err = %v, want IsNotExist", err)
	}
}

func TestSaveIsAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.sif")
	if err := sif.Save(sif.New(), path); err != nil {
		t.Fatal(err)
	}
	// No temporary files left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("directory has %d entries, want just the document", len(entries))
	}
}
