package database

import (
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionConfig_DSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  ConnectionConfig
		want string
	}{
		{
			name: "empty password keeps dbname",
			cfg:  ConnectionConfig{Host: "localhost", Port: "5432", User: "iris", Name: "iris", SSLMode: "disable"},
			want: `host='localhost' port='5432' user='iris' password='' dbname='iris' sslmode='disable'`,
		},
		{
			name: "spaces quotes and backslashes are escaped",
			cfg:  ConnectionConfig{Host: "db", Port: "5432", User: "iris", Password: `p a's\s`, Name: "iris", SSLMode: "require"},
			want: `host='db' port='5432' user='iris' password='p a\'s\\s' dbname='iris' sslmode='require'`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dsn := tt.cfg.DSN()
			assert.Equal(t, tt.want, dsn)

			_, err := pq.NewConnector(dsn)
			require.NoError(t, err)
		})
	}
}
