package di

import (
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/savaki/credential-rotators/internal/dao/rotationdao"
	"github.com/savaki/credential-rotators/internal/services"
)

// ProvideRotationDAO uses the configured history table, or the environment's default table
func ProvideRotationDAO(env string, config *services.Config, client *dynamodb.Client) *rotationdao.DAO {
	tableName := config.HistoryTableName
	if tableName == "" {
		tableName = rotationdao.TableName(env)
	}
	return rotationdao.New(client, tableName)
}

func ProvideHistoryStore(dao *rotationdao.DAO) services.HistoryStore {
	return dao
}
