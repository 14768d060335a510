package core

import (
	"errors"
	"testing"

	"vrtt/protocol"
)

func TestCommandRegistry(t *testing.T) {
	registry := NewCommandRegistry()

	var called bool
	id := registry.Register("test_command", "arg=%u", func(data *[]byte) error {
		called = true
		return nil
	})
	if id != 0 {
		t.Errorf("Expected first command to have ID 0, got %d", id)
	}

	cmd, ok := registry.GetCommand(id)
	if !ok {
		t.Fatal("Failed to retrieve registered command")
	}
	if cmd.Name != "test_command" || cmd.Signature() != "test_command arg=%u" {
		t.Errorf("Unexpected command %q / %q", cmd.Name, cmd.Signature())
	}

	var data []byte
	if err := registry.Dispatch(id, &data); err != nil {
		t.Errorf("Dispatch failed: %v", err)
	}
	if !called {
		t.Error("Command handler was not called")
	}

	err := registry.Dispatch(999, &data)
	if !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("Expected ErrUnknownCommand, got %v", err)
	}
	if err != nil && err.Error() != "unknown command ID: 999" {
		t.Errorf("Unexpected error text %q", err.Error())
	}
}

func TestCommandRegistrySequentialIDs(t *testing.T) {
	registry := NewCommandRegistry()

	id1 := registry.Register("command1", "arg1=%u", func(data *[]byte) error { return nil })
	id2 := registry.RegisterResponse("response2", "arg2=%u")
	id3 := registry.Register("command3", "", func(data *[]byte) error { return nil })
	again := registry.Register("command1", "other=%u", nil)

	if id1 != 0 || id2 != 1 || id3 != 2 {
		t.Errorf("IDs not sequential: %d, %d, %d", id1, id2, id3)
	}
	if again != id1 {
		t.Errorf("Re-registering returned %d, want %d", again, id1)
	}
	if registry.Count() != 3 {
		t.Errorf("Expected 3 entries, got %d", registry.Count())
	}

	cmd, ok := registry.GetCommandByName("response2")
	if !ok || !cmd.IsResponse() || cmd.ID != 1 {
		t.Errorf("Expected response2 as response 1, got %+v", cmd)
	}
	if _, ok := registry.GetCommandByName("missing"); ok {
		t.Error("Found an unregistered name")
	}

	var data []byte
	if err := registry.Dispatch(id2, &data); !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("Dispatching a response must fail, got %v", err)
	}
}

func TestCommandWithArguments(t *testing.T) {
	registry := NewCommandRegistry()

	var receivedValue uint32
	id := registry.Register("test_args", "value=%u", func(data *[]byte) error {
		val, err := protocol.DecodeVLQUint(data)
		if err != nil {
			return err
		}
		receivedValue = val
		return nil
	})

	output := protocol.NewScratchOutput()
	protocol.EncodeVLQUint(output, 12345)
	data := output.Result()

	if err := registry.Dispatch(id, &data); err != nil {
		t.Errorf("Dispatch failed: %v", err)
	}
	if receivedValue != 12345 {
		t.Errorf("Expected value 12345, got %d", receivedValue)
	}

	var empty []byte
	if err := registry.Dispatch(id, &empty); !errors.Is(err, protocol.ErrBufferTooSmall) {
		t.Errorf("Expected the decode error, got %v", err)
	}
}
