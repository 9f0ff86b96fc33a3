package queue

import (
	"testing"

	"reelforge/app/model"
)

func TestRegistryRegisterAndGet(t *testing.T) {
	registry := NewRegistry()
	handler := &stubHandler{kind: testKind}
	registry.Register(handler)

	got, ok := registry.Get(testKind)
	if !ok {
		t.Fatal("registered handler not found")
	}
	if got != handler {
		t.Error("wrong handler returned")
	}

	if _, ok := registry.Get(model.TaskKind("other")); ok {
		t.Error("lookup of an unregistered kind succeeded")
	}
}

func TestRegistryDuplicatePanics(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&stubHandler{kind: testKind})

	defer func() {
		if recover() == nil {
			t.Error("registering the same kind twice did not panic")
		}
	}()
	registry.Register(&stubHandler{kind: testKind})
}

func TestRegistryCheckComplete(t *testing.T) {
	registry := NewRegistry()
	router := &Router{routes: map[model.TaskKind]string{
		testKind: "work",
		kindA:    "work",
	}}

	registry.Register(&stubHandler{kind: testKind})
	if err := registry.CheckComplete(router); err == nil {
		t.Error("missing handler not reported")
	}

	registry.Register(&stubHandler{kind: kindA})
	if err := registry.CheckComplete(router); err != nil {
		t.Errorf("complete registry reported as incomplete: %v", err)
	}
}
