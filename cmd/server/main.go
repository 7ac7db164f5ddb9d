package main

import (
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/nupay/banking-service/internal/auth"
	"github.com/nupay/banking-service/internal/bank"
	"github.com/nupay/banking-service/internal/database"
	"github.com/nupay/banking-service/internal/events"
	"github.com/nupay/banking-service/internal/server"
)

var logger = log.With().Str("pkg", "main").Logger()

var (
	listenAddrApi string

	// kafka
	kafkaBrokerUrl string
	kafkaClientId  string
	kafkaTopic     string
	kafkaEnabled   bool

	// postgres
	host     string
	port     string
	user     string
	password string
	dbname   string

	// auth
	jwtSecret string
	tokenTTL  time.Duration

	defaultBalance string
)

func main() {
	flag.StringVar(&listenAddrApi, "listen-address", "0.0.0.0:3200", "Listen address for api")
	flag.StringVar(&kafkaBrokerUrl, "kafka-brokers", "localhost:19092,localhost:29092,localhost:39092", "Kafka brokers in comma separated value")
	flag.StringVar(&kafkaClientId, "kafka-client-id", "nupay-banking-service", "Kafka client id to connect")
	flag.StringVar(&kafkaTopic, "kafka-topic", "transfers", "Kafka topic to push transfer events")
	flag.BoolVar(&kafkaEnabled, "kafka-enabled", true, "Publish transfer events to kafka")

	flag.StringVar(&host, "host", "localhost", "postgres host")
	flag.StringVar(&port, "port", "5432", "postgres port")
	flag.StringVar(&user, "user", "root", "postgres username")
	flag.StringVar(&password, "password", "root", "postgres password")
	flag.StringVar(&dbname, "dbname", "nupay-banking-pg", "postgres db name")

	flag.StringVar(&jwtSecret, "jwt-secret", os.Getenv("JWT_SECRET"), "secret for signing bearer tokens")
	flag.DurationVar(&tokenTTL, "token-ttl", time.Hour, "bearer token lifetime")
	flag.StringVar(&defaultBalance, "default-balance", "550", "starting balance for new accounts")

	flag.Parse()

	if jwtSecret == "" {
		logger.Fatal().Msg("jwt secret is required (flag -jwt-secret or env JWT_SECRET)")
	}
	startBalance, err := decimal.NewFromString(defaultBalance)
	if err != nil {
		logger.Fatal().Msgf("invalid default balance %q: %s", defaultBalance, err.Error())
	}

	db, err := database.NewClient(host, port, user, password, dbname)
	if err != nil {
		logger.Fatal().Msgf("error while connecting to database: %s", err.Error())
	}
	defer db.Close()
	if err := database.Migrate(db); err != nil {
		logger.Fatal().Msgf("error while migrating database: %s", err.Error())
	}

	var publisher *events.Publisher
	if kafkaEnabled {
		publisher, err = events.Configure(strings.Split(kafkaBrokerUrl, ","), kafkaClientId, kafkaTopic)
		if err != nil {
			logger.Error().Str("error", err.Error()).Msg("unable to configure kafka")
			return
		}
		defer publisher.Close()
	}

	store := database.NewStore(db)
	svc := bank.NewService(store, startBalance)
	gate := auth.NewGate(jwtSecret, tokenTTL)

	gin.SetMode(gin.ReleaseMode)
	router := server.NewRouter(server.NewHandler(svc, gate, publisher))

	var errChan = make(chan error, 1)
	go func() {
		logger.Info().Msgf("starting app at %s", listenAddrApi)
		errChan <- router.Run(listenAddrApi)
	}()

	var signalChan = make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)
	select {
	case <-signalChan:
		logger.Info().Msg("got an interrupt, exiting...")
	case err := <-errChan:
		if err != nil {
			logger.Error().Err(err).Msg("error while running api, exiting...")
		}
	}
}
