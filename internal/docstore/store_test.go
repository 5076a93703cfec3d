package docstore

import (
	"bytes"
	"testing"
)

func TestStoreRoundTrip(t *testing.T) {
	s := New(t.TempDir())

	blob := []byte("codigo,producto,precio\nCF-01,Cafe,4.99\n")
	ref, err := s.Store("co-1", "lista.csv", blob)
	if err != nil {
		t.Fatal(err)
	}

	ref2, err := s.Store("co-1", "lista-copia.csv", blob)
	if err != nil {
		t.Fatal(err)
	}
	if ref != ref2 {
		t.Fatalf("same content got distinct refs: %s vs %s", ref, ref2)
	}

	got, err := s.Download(ref)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, blob) {
		t.Fatal("downloaded blob differs")
	}

	if err := s.Delete(ref); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Download(ref); err == nil {
		t.Fatal("download succeeded after delete")
	}
}

func TestStoreRejectsBadInput(t *testing.T) {
	s := New(t.TempDir())

	if _, err := s.Store("", "x.csv", []byte("a")); err == nil {
		t.Fatal("empty company accepted")
	}
	if _, err := s.Store("co-1", "x.csv", nil); err == nil {
		t.Fatal("empty blob accepted")
	}
	if _, err := s.Download("../../etc/passwd"); err == nil {
		t.Fatal("path escape accepted")
	}
}
