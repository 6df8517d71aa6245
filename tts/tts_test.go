package tts

import (
	"context"
	"reflect"
	"testing"
)

func TestNewExplicitEngines(t *testing.T) {
	cases := []struct {
		engine string
		want   string
	}{
		{"say", "say"},
		{"espeak", "espeak"},
		{"log", "log"},
	}
	for _, c := range cases {
		n := New(Config{Engine: c.engine})
		if n.Name() != c.want {
			t.Errorf("New(%q).Name() = %q, want %q", c.engine, n.Name(), c.want)
		}
	}
}

func TestSayArgs(t *testing.T) {
	got := sayArgs("Alex", 180, "hello chat")
	want := []string{"-v", "Alex", "-r", "180", "hello chat"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("sayArgs = %v, want %v", got, want)
	}
	// Defaults: no voice or rate flags.
	got = sayArgs("", 0, "hello")
	if !reflect.DeepEqual(got, []string{"hello"}) {
		t.Errorf("sayArgs with defaults = %v, want [hello]", got)
	}
}

func TestEspeakArgs(t *testing.T) {
	got := espeakArgs("en-us", 160, "hi")
	want := []string{"-v", "en-us", "-s", "160", "hi"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("espeakArgs = %v, want %v", got, want)
	}
}

func TestLogNarratorNeverFails(t *testing.T) {
	n := New(Config{Engine: "log"})
	if err := n.Speak(context.Background(), "quiet please"); err != nil {
		t.Errorf("log narrator Speak returned %v", err)
	}
}
