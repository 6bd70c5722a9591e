package projection

import (
	"bytes"
	"errors"
	"testing"
)

func TestProject(t *testing.T) {
	tests := []struct {
		name       string
		descriptor string
		want       string
	}{
		{
			name:       "all fields",
			descriptor: `{"entity":{"domain":"x"},"ticker":"BTC","name":"Bitcoin","precision":8}`,
			want:       `["x","BTC","Bitcoin",8]`,
		},
		{
			name:       "missing entity",
			descriptor: `{"ticker":"ETH","name":"Ether","precision":18}`,
			want:       `[null,"ETH","Ether",18]`,
		},
		{
			name:       "entity without domain",
			descriptor: `{"entity":{},"name":"Foo"}`,
			want:       `[null,null,"Foo",null]`,
		},
		{
			name:       "explicit nulls",
			descriptor: `{"entity":{"domain":"foo.dev"},"ticker":null,"name":"Foo","precision":0}`,
			want:       `["foo.dev",null,"Foo",0]`,
		},
		{
			name:       "field order in descriptor does not matter",
			descriptor: `{"precision":2,"name":"Bar","ticker":"BAR","entity":{"domain":"bar.io"},"contract":{"version":0}}`,
			want:       `["bar.io","BAR","Bar",2]`,
		},
		{
			name:       "escapes kept",
			descriptor: `{"name":"Café \"coin\"","ticker":"CAF"}`,
			want:       `[null,"CAF","Café \"coin\"",null]`,
		},
		{
			name:       "pretty printed",
			descriptor: "{\n  \"entity\": { \"domain\": \"x\" },\n  \"name\": \"N\"\n}\n",
			want:       `["x",null,"N",null]`,
		},
		{
			name:       "repeated key takes last value",
			descriptor: `{"ticker":"A","name":"N","ticker":"B"}`,
			want:       `[null,"B","N",null]`,
		},
		{
			name:       "repeated entity takes last object",
			descriptor: `{"entity":{"domain":"a"},"entity":{"domain":"b","domain":"c"}}`,
			want:       `["c",null,null,null]`,
		},
		{
			name:       "non-object entity",
			descriptor: `{"entity":"x","precision":2}`,
			want:       `[null,null,null,2]`,
		},
		{
			name:       "empty object",
			descriptor: `{}`,
			want:       `[null,null,null,null]`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Project([]byte(tc.descriptor))
			if err != nil {
				t.Fatalf("Project: %v", err)
			}
			if string(got) != tc.want {
				t.Fatalf("got %s, want %s", got, tc.want)
			}
		})
	}
}

func TestProjectIsDeterministic(t *testing.T) {
	descriptor := []byte(`{"entity":{"domain":"x"},"ticker":"BTC","name":"Bitcoin","precision":8}`)
	first, err := Project(descriptor)
	if err != nil {
		t.Fatal(err)
	}
	second, err := Project(descriptor)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("projections differ: %s vs %s", first, second)
	}
}

func TestProjectRejectsInvalidDescriptors(t *testing.T) {
	for _, descriptor := range []string{
		"",
		"   ",
		`{"name":`,
		`["x","BTC"]`,
		`"just a string"`,
		`{"name":"a"} trailing`,
	} {
		if _, err := Project([]byte(descriptor)); !errors.Is(err, ErrInvalidDescriptor) {
			t.Fatalf("descriptor %q: expected ErrInvalidDescriptor, got %v", descriptor, err)
		}
	}
}
