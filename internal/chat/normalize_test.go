package chat

import (
	"math/rand/v2"
	"reflect"
	"testing"
)

func alternates(turns []Turn) bool {
	for i := 1; i < len(turns); i++ {
		if turns[i].Role == turns[i-1].Role {
			return false
		}
	}
	return true
}

func TestNormalizeHistoryExamples(t *testing.T) {
	cases := []struct {
		name    string
		prior   []StoredMessage
		message string
		want    []Turn
	}{
		{
			name:    "empty history",
			prior:   nil,
			message: "hi",
			want:    []Turn{{Role: RoleUser, Content: "hi"}},
		},
		{
			name: "consecutive user turns collapse with the new message",
			prior: []StoredMessage{
				{Sender: SenderUser, Content: "a"},
				{Sender: SenderUser, Content: "b"},
			},
			message: "c",
			want:    []Turn{{Role: RoleUser, Content: "a\n\nb\n\nc"}},
		},
		{
			name:    "leading assistant gets synthetic opener",
			prior:   []StoredMessage{{Sender: SenderBot, Content: "x"}},
			message: "hi",
			want: []Turn{
				{Role: RoleUser, Content: "Hello"},
				{Role: RoleAssistant, Content: "x"},
				{Role: RoleUser, Content: "hi"},
			},
		},
		{
			name: "blank turns are dropped before merging",
			prior: []StoredMessage{
				{Sender: SenderUser, Content: "question"},
				{Sender: SenderBot, Content: "   "},
				{Sender: SenderUser, Content: "follow up"},
			},
			message: "and another",
			want: []Turn{
				{Role: RoleUser, Content: "question\n\nfollow up\n\nand another"},
			},
		},
		{
			name: "consecutive bot turns collapse",
			prior: []StoredMessage{
				{Sender: SenderUser, Content: "q"},
				{Sender: SenderBot, Content: "part one"},
				{Sender: SenderBot, Content: "part two"},
			},
			message: "thanks",
			want: []Turn{
				{Role: RoleUser, Content: "q"},
				{Role: RoleAssistant, Content: "part one\n\npart two"},
				{Role: RoleUser, Content: "thanks"},
			},
		},
		{
			name:    "trailing assistant gets follow-up when new message is blank",
			prior:   []StoredMessage{{Sender: SenderUser, Content: "q"}, {Sender: SenderBot, Content: "a"}},
			message: "  ",
			want: []Turn{
				{Role: RoleUser, Content: "q"},
				{Role: RoleAssistant, Content: "a"},
				{Role: RoleUser, Content: "Can you expand on that?"},
			},
		},
		{
			name:    "nothing at all",
			prior:   nil,
			message: "",
			want:    []Turn{{Role: RoleUser, Content: "Hello"}},
		},
		{
			name:    "unknown sender is treated as user",
			prior:   []StoredMessage{{Sender: "system", Content: "note"}},
			message: "hi",
			want:    []Turn{{Role: RoleUser, Content: "note\n\nhi"}},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := NormalizeHistory(tc.prior, tc.message)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("unexpected turns:\n got: %#v\nwant: %#v", got, tc.want)
			}
		})
	}
}

func TestNormalizeHistoryNeverRepeatsRole(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	senders := []string{SenderUser, SenderBot, "assistant", "USER", "other"}
	contents := []string{"", "  ", "text", "more text"}

	for i := 0; i < 500; i++ {
		size := rng.IntN(12)
		prior := make([]StoredMessage, size)
		for j := range prior {
			prior[j] = StoredMessage{
				Sender:  senders[rng.IntN(len(senders))],
				Content: contents[rng.IntN(len(contents))],
			}
		}
		message := contents[rng.IntN(len(contents))]

		got := NormalizeHistory(prior, message)
		if len(got) == 0 {
			t.Fatalf("expected non-empty result for %#v", prior)
		}
		if got[0].Role != RoleUser {
			t.Fatalf("expected first turn to be user, got %#v", got)
		}
		if got[len(got)-1].Role != RoleUser {
			t.Fatalf("expected last turn to be user, got %#v", got)
		}
		if !alternates(got) {
			t.Fatalf("expected alternating roles, got %#v", got)
		}
	}
}

func TestNormalizeHistoryDoesNotMutateInput(t *testing.T) {
	prior := []StoredMessage{
		{Sender: SenderUser, Content: " a "},
		{Sender: SenderUser, Content: "b"},
	}
	_ = NormalizeHistory(prior, "c")
	if prior[0].Content != " a " || prior[1].Content != "b" {
		t.Fatalf("expected stored history to stay untouched, got %#v", prior)
	}
}

func TestRoleFromSender(t *testing.T) {
	if RoleFromSender("bot") != RoleAssistant {
		t.Fatalf("expected bot to map to assistant")
	}
	if RoleFromSender(" Assistant ") != RoleAssistant {
		t.Fatalf("expected assistant to map to assistant")
	}
	if RoleFromSender("user") != RoleUser || RoleFromSender("robot") != RoleUser {
		t.Fatalf("expected everything else to map to user")
	}
	if RoleAssistant.String() != "assistant" || RoleUser.Sender() != "user" || RoleAssistant.Sender() != "bot" {
		t.Fatalf("unexpected role labels")
	}
}
