package mongo

import "testing"

func TestHelloReply_SupportsTransactions(t *testing.T) {
	cases := []struct {
		name  string
		reply helloReply
		want  bool
	}{
		{"replica set member", helloReply{SetName: "rs0"}, true},
		{"mongos router", helloReply{Msg: "isdbgrid"}, true},
		{"standalone", helloReply{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.reply.supportsTransactions(); got != tc.want {
				t.Fatalf("supportsTransactions() = %v, want %v", got, tc.want)
			}
		})
	}
}
