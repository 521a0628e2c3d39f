// contract_registry_test.go: interface definition and provider slot tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goextensions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderSlot(t *testing.T) {
	tests := []struct {
		iface string
		slot  string
	}{
		{"IStorage", "PStorage"},
		{"ILogging", "PLogging"},
		{"Storage", "PStorage"},
		{"I", "PI"},
		{"Index", "Pndex"},
	}
	for _, tt := range tests {
		t.Run(tt.iface, func(t *testing.T) {
			assert.Equal(t, tt.slot, ProviderSlot(tt.iface))
		})
	}
}

func TestContractRegistry_DefineInterface(t *testing.T) {
	r := NewContractRegistry(nil, nil, nil)

	first, err := r.DefineInterface("IStorage", storageMethods(), storageConsumerRequired(), false)
	require.NoError(t, err)

	t.Run("IdenticalShapeIsIdempotent", func(t *testing.T) {
		again, err := r.DefineInterface("IStorage", storageMethods(), storageConsumerRequired(), false)
		require.NoError(t, err)
		assert.Same(t, first, again)
	})

	t.Run("DifferentShapeFails", func(t *testing.T) {
		_, err := r.DefineInterface("IStorage", []MethodSignature{Method("Get", 1)}, nil, false)
		require.Error(t, err)
		assert.Equal(t, ErrCodeDuplicateInterface, ErrorCodeOf(err))
	})

	t.Run("AbstractFlagIsPartOfShape", func(t *testing.T) {
		_, err := r.DefineInterface("IStorage", storageMethods(), storageConsumerRequired(), true)
		assert.Equal(t, ErrCodeDuplicateInterface, ErrorCodeOf(err))
	})

	invalid := []struct {
		name     string
		iface    string
		methods  []MethodSignature
		consumer []MethodSignature
	}{
		{"EmptyName", "", nil, nil},
		{"EmptyMethodName", "IBroken", []MethodSignature{Method("", 0)}, nil},
		{"DuplicateMethod", "IBroken", []MethodSignature{Method("A", 0), Method("A", 1)}, nil},
		{"ConsumerRequiredNotSubset", "IBroken", []MethodSignature{Method("A", 0)}, []MethodSignature{Method("B", 0)}},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.DefineInterface(tt.iface, tt.methods, tt.consumer, false)
			assert.Equal(t, ErrCodeInvalidInterface, ErrorCodeOf(err))
		})
	}

	iface, ok := r.LookupInterface("IStorage")
	require.True(t, ok)
	assert.Equal(t, "PStorage", iface.Slot())
	assert.Len(t, iface.ProviderMethods(), 3)
	assert.Equal(t, []string{"IStorage"}, r.Interfaces())
}

func TestContractRegistry_RegisterPlugin(t *testing.T) {
	t.Run("PublishesUnderInterfaceAndSlotName", func(t *testing.T) {
		r := newTestContracts(t, NewTestLogger(), nil)
		storage := newMemoryStorage()

		p, err := r.RegisterPlugin("MemoryStorage", storage, []string{"IStorage"})
		require.NoError(t, err)
		assert.True(t, p.Published())

		for _, name := range []string{"IStorage", "PStorage", "MemoryStorage"} {
			found, err := r.LookupProvider(name)
			require.NoError(t, err, name)
			assert.Same(t, p, found)
		}
		assert.Same(t, storage, p.instance)
		assert.Equal(t, []string{"MemoryStorage"}, r.Providers())
	})

	t.Run("SlotHoldsOneProvider", func(t *testing.T) {
		r := newTestContracts(t, nil, nil)
		_, err := r.RegisterPlugin("First", newMemoryStorage(), []string{"IStorage"})
		require.NoError(t, err)

		_, err = r.RegisterPlugin("Second", newMemoryStorage(), []string{"IStorage"})
		require.Error(t, err)
		assert.Equal(t, ErrCodeAlreadyImplemented, ErrorCodeOf(err))

		p, err := r.LookupProvider("IStorage")
		require.NoError(t, err)
		assert.Equal(t, "First", p.ID())
	})

	failures := []struct {
		name       string
		instance   any
		interfaces []string
		code       string
	}{
		{"AbstractInterface", newMemoryStorage(), []string{"IBase"}, ErrCodeAbstractInterface},
		{"MissingMethod", incompleteStorage{}, []string{"IStorage"}, ErrCodeInterfaceImplementation},
		{"UnknownInterface", newMemoryStorage(), []string{"IUnknown"}, ErrCodeUnknownInterface},
		{"NilInstance", nil, []string{"IStorage"}, ErrCodeInvalidProvider},
	}
	for _, tt := range failures {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestContracts(t, nil, nil)
			_, err := r.RegisterPlugin("Plugin", tt.instance, tt.interfaces)
			require.Error(t, err)
			assert.Equal(t, tt.code, ErrorCodeOf(err))
			assert.Empty(t, r.Providers())
		})
	}

	t.Run("FailedRegistrationLeavesNoPartialSlots", func(t *testing.T) {
		r := newTestContracts(t, nil, nil)
		_, err := r.RegisterPlugin("Mixed", newMemoryStorage(), []string{"IStorage", "ILogging"})
		require.Error(t, err)
		assert.Equal(t, ErrCodeInterfaceImplementation, ErrorCodeOf(err))

		_, err = r.LookupProvider("IStorage")
		assert.Equal(t, ErrCodeProviderNotFound, ErrorCodeOf(err))
	})

	t.Run("MissingMethodIsReported", func(t *testing.T) {
		r := newTestContracts(t, nil, nil)
		_, err := r.RegisterPlugin("Partial", incompleteStorage{}, []string{"IStorage"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "IStorage.Put")
	})
}

func TestContractRegistry_UnregisterPlugin(t *testing.T) {
	bus := NewNotificationBus(nil)
	var events []EventType
	bus.SubscribeFunc(func(e Event) error {
		events = append(events, e.Type)
		return nil
	})
	r := newTestContracts(t, nil, bus)
	storage := newMemoryStorage()
	p, err := r.RegisterPlugin("MemoryStorage", storage, []string{"IStorage"})
	require.NoError(t, err)

	require.NoError(t, r.UnregisterPlugin("MemoryStorage"))
	assert.Equal(t, int32(1), storage.unloaded.Load())
	assert.True(t, p.Unloaded())

	_, err = r.LookupProvider("PStorage")
	assert.Equal(t, ErrCodeProviderNotFound, ErrorCodeOf(err))

	// Idempotent: the hook does not run twice.
	require.NoError(t, r.UnregisterPlugin("MemoryStorage"))
	require.NoError(t, r.UnregisterPlugin("NeverRegistered"))
	assert.Equal(t, int32(1), storage.unloaded.Load())

	assert.Equal(t, []EventType{EventProviderPublished, EventProviderWithdrawn}, events)

	// The slot is free again.
	_, err = r.RegisterPlugin("Replacement", newMemoryStorage(), []string{"IStorage"})
	assert.NoError(t, err)
}

type panickingUnloader struct{ *memoryStorage }

func (p *panickingUnloader) Unload() { panic("unload failed") }

func TestContractRegistry_UnloadHookPanicIsRecovered(t *testing.T) {
	logger := NewTestLogger()
	r := newTestContracts(t, logger, nil)
	_, err := r.RegisterPlugin("Fragile", &panickingUnloader{memoryStorage: newMemoryStorage()}, []string{"IStorage"})
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		require.NoError(t, r.UnregisterPlugin("Fragile"))
	})
	assert.True(t, logger.HasMessage("ERROR", "Panic recovered"))
	assert.Empty(t, r.Providers())
}

func TestContractRegistry_ValidateConsumer(t *testing.T) {
	r := newTestContracts(t, nil, nil)

	assert.NoError(t, r.ValidateConsumer("dashboard", &dashboard{}, []string{"IStorage"}))
	assert.NoError(t, r.ValidateConsumer("logger-app", &bareApp{}, []string{"ILogging"}))

	err := r.ValidateConsumer("bare", &bareApp{}, []string{"IStorage"})
	require.Error(t, err)
	assert.Equal(t, ErrCodeAppInterfaceImplementation, ErrorCodeOf(err))

	err = r.ValidateConsumer("bare", &bareApp{}, []string{"IUnknown"})
	assert.Equal(t, ErrCodeUnknownInterface, ErrorCodeOf(err))
}
