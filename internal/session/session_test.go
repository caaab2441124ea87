package session

import "testing"

func TestMemoryStore(t *testing.T) {
	t.Run("same pointer within revision", func(t *testing.T) {
		s := NewMemoryStore()
		a := s.View("sid", "page", "rev1", 0)
		a.Sort = "!name"
		b := s.View("sid", "page", "rev1", 0)
		if a != b {
			t.Fatal("expected the same state pointer")
		}
		if b.Sort != "!name" {
			t.Errorf("sort = %q", b.Sort)
		}
	})

	t.Run("instances are independent", func(t *testing.T) {
		s := NewMemoryStore()
		if s.View("sid", "page", "rev1", 0) == s.View("sid", "page", "rev1", 1) {
			t.Error("block indexes share state")
		}
		if s.View("sid", "page", "rev1", 0) == s.View("other", "page", "rev1", 0) {
			t.Error("sessions share state")
		}
	})

	t.Run("revision change drops state", func(t *testing.T) {
		s := NewMemoryStore()
		a := s.View("sid", "page", "rev1", 0)
		a.Skip = 40
		b := s.View("sid", "page", "rev2", 0)
		if a == b {
			t.Fatal("state survived a revision change")
		}
		if b.Skip != 0 {
			t.Errorf("skip = %d", b.Skip)
		}
	})

	t.Run("reset page", func(t *testing.T) {
		s := NewMemoryStore()
		a := s.View("sid", "page", "rev1", 0)
		a.Num = 50
		s.ResetPage("sid", "page")
		if b := s.View("sid", "page", "rev1", 0); a == b || b.Num != 0 {
			t.Errorf("state survived reset: %+v", b)
		}
	})
}

func TestViewStateResetEditor(t *testing.T) {
	v := &ViewState{
		Drafts:    map[string]any{"name": "draft"},
		EditIndex: 3,
	}
	v.ResetEditor()
	if v.Drafts != nil || v.EditIndex != 0 {
		t.Errorf("state = %+v", v)
	}
}
