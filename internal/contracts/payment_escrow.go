package contracts

// PaymentEscrowABI covers the slice of the PaymentEscrow contract surface the
// service uses: request reads, the three mutating calls, and the creation
// event used to resolve assigned request ids.
const PaymentEscrowABI = `[
  {
    "inputs": [],
    "name": "getAvailableRequests",
    "outputs": [
      {
        "components": [
          {"internalType": "uint256", "name": "requestId", "type": "uint256"},
          {"internalType": "address", "name": "requester", "type": "address"},
          {"internalType": "address", "name": "payer", "type": "address"},
          {"internalType": "uint256", "name": "amountINR", "type": "uint256"},
          {"internalType": "address", "name": "tokenAddress", "type": "address"},
          {"internalType": "uint256", "name": "daiAmount", "type": "uint256"},
          {"internalType": "uint256", "name": "payerFee", "type": "uint256"},
          {"internalType": "uint8", "name": "status", "type": "uint8"},
          {"internalType": "uint256", "name": "createdAt", "type": "uint256"},
          {"internalType": "uint256", "name": "committedAt", "type": "uint256"},
          {"internalType": "uint256", "name": "expiresAt", "type": "uint256"},
          {"internalType": "string", "name": "transactionNumber", "type": "string"}
        ],
        "internalType": "struct PaymentEscrow.PaymentRequest[]",
        "name": "",
        "type": "tuple[]"
      }
    ],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "uint256", "name": "_requestId", "type": "uint256"}],
    "name": "getPaymentRequest",
    "outputs": [
      {
        "components": [
          {"internalType": "uint256", "name": "requestId", "type": "uint256"},
          {"internalType": "address", "name": "requester", "type": "address"},
          {"internalType": "address", "name": "payer", "type": "address"},
          {"internalType": "uint256", "name": "amountINR", "type": "uint256"},
          {"internalType": "address", "name": "tokenAddress", "type": "address"},
          {"internalType": "uint256", "name": "daiAmount", "type": "uint256"},
          {"internalType": "uint256", "name": "payerFee", "type": "uint256"},
          {"internalType": "uint8", "name": "status", "type": "uint8"},
          {"internalType": "uint256", "name": "createdAt", "type": "uint256"},
          {"internalType": "uint256", "name": "committedAt", "type": "uint256"},
          {"internalType": "uint256", "name": "expiresAt", "type": "uint256"},
          {"internalType": "string", "name": "transactionNumber", "type": "string"}
        ],
        "internalType": "struct PaymentEscrow.PaymentRequest",
        "name": "",
        "type": "tuple"
      }
    ],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "address", "name": "_payer", "type": "address"}],
    "name": "getPayerCommittedRequests",
    "outputs": [
      {
        "components": [
          {"internalType": "uint256", "name": "requestId", "type": "uint256"},
          {"internalType": "address", "name": "requester", "type": "address"},
          {"internalType": "address", "name": "payer", "type": "address"},
          {"internalType": "uint256", "name": "amountINR", "type": "uint256"},
          {"internalType": "address", "name": "tokenAddress", "type": "address"},
          {"internalType": "uint256", "name": "daiAmount", "type": "uint256"},
          {"internalType": "uint256", "name": "payerFee", "type": "uint256"},
          {"internalType": "uint8", "name": "status", "type": "uint8"},
          {"internalType": "uint256", "name": "createdAt", "type": "uint256"},
          {"internalType": "uint256", "name": "committedAt", "type": "uint256"},
          {"internalType": "uint256", "name": "expiresAt", "type": "uint256"},
          {"internalType": "string", "name": "transactionNumber", "type": "string"}
        ],
        "internalType": "struct PaymentEscrow.PaymentRequest[]",
        "name": "",
        "type": "tuple[]"
      }
    ],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "address", "name": "_requester", "type": "address"}],
    "name": "getUserRequests",
    "outputs": [
      {
        "components": [
          {"internalType": "uint256", "name": "requestId", "type": "uint256"},
          {"internalType": "address", "name": "requester", "type": "address"},
          {"internalType": "address", "name": "payer", "type": "address"},
          {"internalType": "uint256", "name": "amountINR", "type": "uint256"},
          {"internalType": "address", "name": "tokenAddress", "type": "address"},
          {"internalType": "uint256", "name": "daiAmount", "type": "uint256"},
          {"internalType": "uint256", "name": "payerFee", "type": "uint256"},
          {"internalType": "uint8", "name": "status", "type": "uint8"},
          {"internalType": "uint256", "name": "createdAt", "type": "uint256"},
          {"internalType": "uint256", "name": "committedAt", "type": "uint256"},
          {"internalType": "uint256", "name": "expiresAt", "type": "uint256"},
          {"internalType": "string", "name": "transactionNumber", "type": "string"}
        ],
        "internalType": "struct PaymentEscrow.PaymentRequest[]",
        "name": "",
        "type": "tuple[]"
      }
    ],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [
      {"internalType": "uint256", "name": "_amountINR", "type": "uint256"},
      {"internalType": "uint256", "name": "_daiAmount", "type": "uint256"}
    ],
    "name": "createPaymentRequest",
    "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
    "stateMutability": "payable",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "uint256", "name": "_requestId", "type": "uint256"}],
    "name": "commitToPay",
    "outputs": [],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "inputs": [
      {"internalType": "uint256", "name": "_requestId", "type": "uint256"},
      {"internalType": "string", "name": "_transactionNumber", "type": "string"}
    ],
    "name": "fulfillPayment",
    "outputs": [],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "getNextRequestId",
    "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "getPlatformFee",
    "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
    "stateMutability": "pure",
    "type": "function"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "uint256", "name": "requestId", "type": "uint256"},
      {"indexed": true, "internalType": "address", "name": "requester", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "amountINR", "type": "uint256"}
    ],
    "name": "PaymentRequestCreated",
    "type": "event"
  }
]`
