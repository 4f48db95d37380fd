package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const (
	// MethodPostAnswer 是合约中发布回答的方法。
	MethodPostAnswer = "postAnswer"
	// EventAnswerPosted 是 postAnswer 成功后合约发出的事件。
	EventAnswerPosted = "AnswerPosted"
	// EventQuestionPosted 由问题子系统触发，这里只用于日志解析。
	EventQuestionPosted = "QuestionPosted"
)

// ContractABI 是问答合约中本服务会用到的部分。
const ContractABI = `[
  {"type":"function","name":"postAnswer","stateMutability":"nonpayable",
   "inputs":[{"name":"questionId","type":"uint256"},{"name":"contentHash","type":"bytes32"}],
   "outputs":[{"name":"answerId","type":"uint256"}]},
  {"type":"event","name":"AnswerPosted","anonymous":false,
   "inputs":[{"name":"questionId","type":"uint256","indexed":true},
             {"name":"answerId","type":"uint256","indexed":true},
             {"name":"author","type":"address","indexed":true},
             {"name":"contentHash","type":"bytes32","indexed":false}]},
  {"type":"event","name":"QuestionPosted","anonymous":false,
   "inputs":[{"name":"questionId","type":"uint256","indexed":true},
             {"name":"author","type":"address","indexed":true},
             {"name":"contentHash","type":"bytes32","indexed":false}]}
]`

// ParseABI 解析 ContractABI。
func ParseABI() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(ContractABI))
}
