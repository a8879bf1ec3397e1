package config

type (

	// Config program configuration
	Config struct {

		// Logging
		Log struct {

			// Directory of the log file
			Path string

			// Log file name
			Filename string `required:"true" default:"safetywatch.log"`

			// Log level
			Level string `required:"true" default:"info"`

			// Log to console only
			Console bool `default:"false"`
		}

		// Audit database
		Db struct {

			// Database type, only sqlite is supported
			Type string `default:"sqlite"`

			// Database file
			Filename string `required:"true" default:"safetywatch.sqlite"`

			// Days of readings kept in the archive
			ArchiveDays int `default:"30"`

			// Archive cleaning period in minutes
			CleanArchiveInterval int `default:"30"`
		}

		// HTTP server
		Http struct {

			// Port of the HTTP server
			Port uint `required:"true" default:"8080"`

			// Directory with the static client
			AssetsDir string `default:"static"`

			// Session cookie name
			CookieName string `default:"safety_session"`

			// Session lifetime in minutes
			SessionTTL uint `default:"720"`
		}

		// Monitoring engine
		Monitor struct {

			// Readings kept per worker
			HistorySize int `default:"100"`

			// Unacknowledged alerts escalate after this many seconds
			EscalationWindow uint `default:"30"`

			// Period of the escalation sweep in seconds
			SweepInterval uint `default:"1"`

			// Seconds without a reading or poll before an inactivity emergency
			InactivityTimeout uint `default:"45"`

			// Seconds a resolved alert stays on the dashboard
			ResolvedRetention uint `default:"300"`

			// Accepted readings per worker per second, a negative value disables the limit
			ReadingsPerSecond int `default:"2"`

			// Zone sensitivity factors, defaults are used when empty
			ZoneSensitivity map[string]float64
		}

		// Seed administrator
		Admin struct {
			Username string `default:"admin"`
			Password string `default:"admin123"`
		}

		// Seed worker roster
		Workers []struct {
			ID   string `required:"true"`
			Name string `required:"true"`
			Zone string `default:"NORMAL"`
			Pin  string `required:"true"`
		}

		// External wearable feeds
		Feeds struct {

			// Websocket hubs
			Websocket []struct {
				ID      uint   `required:"true"`
				Address string `required:"true"`
				Name    string `required:"true"`
			}

			// MQTT broker, empty disables the feed
			Mqtt struct {
				Broker   string
				Topic    string `default:"safety/readings"`
				ClientID string `default:"safetywatch"`
			}
		}

		// Escalation notifications
		Notify struct {
			Sns struct {
				Enabled  bool `default:"false"`
				Region   string `default:"us-east-1"`
				TopicArn string
			}
		}
	}
)
