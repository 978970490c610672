package rail

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrameValidate(t *testing.T) {
	tests := []struct {
		name  string
		frame AppListFrame
		ok    bool
	}{
		{
			name:  "new app",
			frame: AppListFrame{NewAppID: true, AppProvider: "p", AppID: "a"},
			ok:    true,
		},
		{
			name:  "delete app",
			frame: AppListFrame{DeleteAppID: true, AppProvider: "p", AppID: "a"},
			ok:    true,
		},
		{
			name:  "delete provider",
			frame: AppListFrame{DeleteAppProvider: true, AppProvider: "p"},
			ok:    true,
		},
		{
			name:  "sync frame",
			frame: AppListFrame{NewAppID: true, InSync: true, SyncStart: true},
			ok:    true,
		},
		{
			name:  "no mode",
			frame: AppListFrame{AppProvider: "p"},
			ok:    false,
		},
		{
			name:  "two modes",
			frame: AppListFrame{NewAppID: true, DeleteAppID: true},
			ok:    false,
		},
		{
			name:  "sync start without in-sync",
			frame: AppListFrame{NewAppID: true, SyncStart: true},
			ok:    false,
		},
		{
			name:  "sync end without in-sync",
			frame: AppListFrame{DeleteAppID: true, SyncEnd: true},
			ok:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.frame.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
