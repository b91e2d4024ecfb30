package telephony

import "testing"

func TestParseScripts(t *testing.T) {
	s, err := ParseScripts([]byte(`
scripts:
  solar:
    voice: alice
    greeting: "Hi, it's Sunny Solar."
    responses:
      "1": "Wonderful, a specialist will text you."
    sms_followup: "Sunny Solar: here is your quote link."
`))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	sc := s.Get("solar")
	if sc.ID != "solar" || sc.Voice != "alice" || sc.Greeting != "Hi, it's Sunny Solar." {
		t.Fatalf("unexpected script: %+v", sc)
	}
	if sc.Responses["1"] != "Wonderful, a specialist will text you." {
		t.Fatalf("custom response lost: %q", sc.Responses["1"])
	}
	if sc.Responses["2"] != DefaultScript.Responses["2"] {
		t.Fatalf("missing response should fall back to default")
	}
	if sc.GatherPrompt != DefaultScript.GatherPrompt {
		t.Fatalf("missing prompt should fall back to default")
	}
	if !s.Has("solar") || s.Has("unknown") {
		t.Fatalf("unexpected Has results")
	}
	if got := s.Get("unknown"); got.ID != DefaultScriptID {
		t.Fatalf("unknown id should return default, got %q", got.ID)
	}
}

func TestParseScriptsInvalidYAML(t *testing.T) {
	if _, err := ParseScripts([]byte("scripts: [")); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestParseScriptsRejectsUnknownKeys(t *testing.T) {
	cases := map[string]string{
		"missing scripts key": "solar:\n  greeting: hi\n",
		"misspelled field":    "scripts:\n  solar:\n    greting: hi\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseScripts([]byte(doc)); err == nil {
				t.Fatalf("expected error for %q", doc)
			}
		})
	}
}

func TestLoadScriptsEmptyPath(t *testing.T) {
	s, err := LoadScripts("")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if s.Get("").ID != DefaultScriptID {
		t.Fatalf("expected default script")
	}
}
