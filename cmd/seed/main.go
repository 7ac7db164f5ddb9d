// Seed inserts a demo account so the front-end has someone to log in as.
package main

import (
	"context"
	"flag"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/nupay/banking-service/internal/auth"
	"github.com/nupay/banking-service/internal/database"
	"github.com/nupay/banking-service/internal/model"
)

var logger = log.With().Str("pkg", "main").Logger()

var (
	host     string
	port     string
	user     string
	password string
	dbname   string

	email        string
	userPassword string
	name         string
	phone        string
	cardNo       string
	accNo        string
	balance      string
)

func main() {
	flag.StringVar(&host, "host", "localhost", "postgres host")
	flag.StringVar(&port, "port", "5432", "postgres port")
	flag.StringVar(&user, "user", "root", "postgres username")
	flag.StringVar(&password, "password", "root", "postgres password")
	flag.StringVar(&dbname, "dbname", "nupay-banking-pg", "postgres db name")

	flag.StringVar(&email, "email", "p@admin.com", "demo account email")
	flag.StringVar(&userPassword, "user-password", "123", "demo account password")
	flag.StringVar(&name, "name", "Arslan P", "demo account name")
	flag.StringVar(&phone, "phone", "+876887567", "demo account phone")
	flag.StringVar(&cardNo, "card-no", "2234 5278 9012", "demo account card number")
	flag.StringVar(&accNo, "acc-no", "0001233456799", "demo account number")
	flag.StringVar(&balance, "balance", "550", "demo account balance")

	flag.Parse()

	startBalance, err := decimal.NewFromString(balance)
	if err != nil {
		logger.Fatal().Msgf("invalid balance %q: %s", balance, err.Error())
	}

	db, err := database.NewClient(host, port, user, password, dbname)
	if err != nil {
		logger.Fatal().Msgf("error while connecting to database: %s", err.Error())
	}
	defer db.Close()
	if err := database.Migrate(db); err != nil {
		logger.Fatal().Msgf("error while migrating database: %s", err.Error())
	}

	hash, err := auth.HashPassword(userPassword)
	if err != nil {
		logger.Fatal().Msgf("error while hashing password: %s", err.Error())
	}

	store := database.NewStore(db)
	account := &model.Account{
		Email:        email,
		PasswordHash: hash,
		Name:         name,
		Phone:        phone,
		CardNo:       cardNo,
		AccNo:        accNo,
		Balance:      startBalance,
		CreatedAt:    time.Now().UTC(),
	}
	if err := store.InsertAccount(context.Background(), account); err != nil {
		logger.Fatal().Msgf("error while inserting demo account: %s", err.Error())
	}
	logger.Info().Str("email", email).Msg("demo account inserted")
}
