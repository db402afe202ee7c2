package migrate

import (
	"strings"
	"testing"
)

func steps() []Migration[[]string] {
	mk := func(v uint16, name string) Migration[[]string] {
		return Migration[[]string]{
			Version: v,
			Name:    name,
			Up:      func(log []string) ([]string, error) { return append(log, "up"+name), nil },
			Down:    func(log []string) ([]string, error) { return append(log, "down"+name), nil },
		}
	}
	// Registered out of order on purpose.
	return []Migration[[]string]{mk(3, "3"), mk(1, "1"), mk(2, "2"), mk(4, "4")}
}

func TestRun_Up(t *testing.T) {
	got, err := Run(nil, 1, 3, steps())
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(got, ",") != "up2,up3" {
		t.Fatalf("got %v, want [up2 up3]", got)
	}
}

func TestRun_Down(t *testing.T) {
	got, err := Run(nil, 4, 1, steps())
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(got, ",") != "down4,down3,down2" {
		t.Fatalf("got %v, want [down4 down3 down2]", got)
	}
}

func TestRun_SameVersion(t *testing.T) {
	got, err := Run([]string{"x"}, 2, 2, steps())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("got %v, want untouched", got)
	}
}

func TestRun_Gap(t *testing.T) {
	if _, err := Run(nil, 1, 6, steps()); err == nil {
		t.Fatal("expected error for missing versions")
	}
}
